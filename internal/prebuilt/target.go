package prebuilt

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/kingrea/cbuildbot/internal/buildroot"
)

// hostPackagesDir holds binary packages built for the SDK itself.
const hostPackagesDir = "chroot/var/lib/portage/pkgs"

// Target selects which binary packages are published: the host SDK when
// Board is empty, otherwise the board's packages.
type Target struct {
	Board string
}

// String names the target in logs and version files.
func (t Target) String() string {
	if t.Board == "" {
		return "host"
	}
	return t.Board
}

// LocalDir returns the package directory for the target inside root.
func (t Target) LocalDir(root string) string {
	if t.Board == "" {
		return filepath.Join(root, filepath.FromSlash(hostPackagesDir))
	}
	return filepath.Join(buildroot.New(root).BoardDir(t.Board), "packages")
}

// StripPath returns the local prefix removed before joining onto the remote
// prefix, so uploads keep the "packages/..." part of the path.
func (t Target) StripPath(root string) string {
	return filepath.Dir(t.LocalDir(root)) + string(filepath.Separator)
}

// RemotePrefix returns where this target's packages for version live.
func (t Target) RemotePrefix(base, version string) string {
	if t.Board == "" {
		return JoinRemote(base, "host/"+version)
	}
	return JoinRemote(base, "board/"+t.Board+"/"+version)
}

// VersionKey is the version file key recording the latest upload.
func (t Target) VersionKey() string {
	return strings.ReplaceAll(t.String(), " ", "_")
}

// NewVersion stamps an upload version from the clock.
func NewVersion(now time.Time) string {
	return now.UTC().Format("2006.01.02.150405")
}
