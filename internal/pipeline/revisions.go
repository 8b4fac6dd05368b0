package pipeline

import (
	"os"
	"strings"
)

// ForceBuildRevisions is written to the revision file when a build was
// forced rather than triggered by new commits.
const ForceBuildRevisions = "None"

// RevisionList is what was read from a revision file.
type RevisionList struct {
	Raw string
	// Forced is true when there is no usable list: no file, an unreadable
	// or empty file, or the ForceBuildRevisions sentinel.
	Forced bool
	// ReadErr is set when a file was named but could not be read.
	ReadErr error
}

// Entries splits the raw list on whitespace.
func (r RevisionList) Entries() []string {
	if r.Forced {
		return nil
	}
	return strings.Fields(r.Raw)
}

// ReadRevisions loads the revision file at path. It never fails: a file
// that cannot be read is reported through ReadErr and treated as forced.
func ReadRevisions(path string) RevisionList {
	if strings.TrimSpace(path) == "" {
		return RevisionList{Forced: true}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RevisionList{Forced: true, ReadErr: err}
	}
	raw := string(data)
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == ForceBuildRevisions {
		return RevisionList{Raw: raw, Forced: true}
	}
	return RevisionList{Raw: raw}
}
