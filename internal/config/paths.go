package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is created under the user's home when no state dir is given.
const StateDirName = ".cbuildbot"

// Paths locates the state cbuildbot keeps outside the buildroot. The
// buildroot may be clobbered at any time, so nothing that has to survive
// a failed run is written inside it.
type Paths struct {
	StateDir string
}

// DefaultStateDir returns ~/.cbuildbot, falling back to the working directory.
func DefaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, StateDirName)
	}
	return StateDirName
}

// InitStateDir creates the state directory structure.
//
// <state>/
// ├── logs/      <- cbuildbot.log and per-run logbooks
// └── history/   <- run history database
func InitStateDir(stateDir string) (Paths, error) {
	stateDir = strings.TrimSpace(stateDir)
	if stateDir == "" {
		stateDir = DefaultStateDir()
	}
	abs, err := filepath.Abs(stateDir)
	if err != nil {
		return Paths{}, fmt.Errorf("config: resolve state dir: %w", err)
	}
	p := Paths{StateDir: abs}
	for _, dir := range []string{p.LogsDir(), p.HistoryDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	return p, nil
}

// LogsDir returns the directory for log files.
func (p Paths) LogsDir() string {
	return filepath.Join(p.StateDir, "logs")
}

// LogPath returns the path of the process-wide log.
func (p Paths) LogPath() string {
	return filepath.Join(p.LogsDir(), "cbuildbot.log")
}

// RunLogPath returns the logbook path for a run.
func (p Paths) RunLogPath(runID string) string {
	return filepath.Join(p.LogsDir(), "runs", runID+".log")
}

// HistoryDir returns the directory backing the run history store.
func (p Paths) HistoryDir() string {
	return filepath.Join(p.StateDir, "history")
}
