// internal/buildroot/buildroot.go
//
// The buildroot has no state file of its own. Whether a stage has already
// run is read off the directory tree every time it is asked, so a crashed
// or clobbered run never leaves a record that disagrees with the disk.
//
// <buildroot>/
// ├── src/scripts/          <- working directory for every provisioning stage
// └── chroot/               <- present once make_chroot has run
//     └── build/<board>/    <- present once setup_board has run for <board>

package buildroot

import (
	"io/fs"
	"os"
	"path/filepath"
)

const (
	ChrootDir  = "chroot"
	BuildDir   = "build"
	ScriptsDir = "src/scripts"
)

// Layout resolves the well-known paths inside one buildroot.
type Layout struct {
	Root string
}

// New returns the layout for root.
func New(root string) Layout {
	return Layout{Root: root}
}

// ChrootDir returns <root>/chroot.
func (l Layout) ChrootDir() string {
	return filepath.Join(l.Root, ChrootDir)
}

// BoardDir returns <root>/chroot/build/<board>.
func (l Layout) BoardDir(board string) string {
	return filepath.Join(l.Root, ChrootDir, BuildDir, board)
}

// ScriptsDir returns <root>/src/scripts.
func (l Layout) ScriptsDir() string {
	return filepath.Join(l.Root, filepath.FromSlash(ScriptsDir))
}

// StatFunc matches os.Stat.
type StatFunc func(name string) (fs.FileInfo, error)

// Selector answers "has this stage already happened" from live filesystem
// state. Nothing is cached between calls.
type Selector struct {
	layout Layout
	stat   StatFunc
}

// NewSelector returns a selector backed by os.Stat.
func NewSelector(layout Layout) *Selector {
	return &Selector{layout: layout, stat: os.Stat}
}

// NewSelectorWithStat returns a selector that answers from stat. Tests use it
// to describe a directory tree without creating one.
func NewSelectorWithStat(layout Layout, stat StatFunc) *Selector {
	if stat == nil {
		stat = os.Stat
	}
	return &Selector{layout: layout, stat: stat}
}

// Layout returns the layout the selector inspects.
func (s *Selector) Layout() Layout {
	return s.layout
}

// Exists reports whether the buildroot itself is a directory.
func (s *Selector) Exists() bool {
	return s.isDir(s.layout.Root)
}

// ChrootExists reports whether <root>/chroot is a directory.
func (s *Selector) ChrootExists() bool {
	return s.isDir(s.layout.ChrootDir())
}

// BoardExists reports whether <root>/chroot/build/<board> is a directory.
func (s *Selector) BoardExists(board string) bool {
	if board == "" {
		return false
	}
	return s.isDir(s.layout.BoardDir(board))
}

func (s *Selector) isDir(path string) bool {
	info, err := s.stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
