package prebuilt

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// FileLister enumerates the files below a local directory.
type FileLister interface {
	ListFiles(root string) ([]string, error)
}

// FileListerFunc adapts a function to FileLister.
type FileListerFunc func(root string) ([]string, error)

func (fn FileListerFunc) ListFiles(root string) ([]string, error) {
	return fn(root)
}

// DirLister lists regular files by walking the directory tree.
type DirLister struct{}

func (DirLister) ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prebuilt: list %s: %w", root, err)
	}
	return files, nil
}

// GenerateUploadDict maps every file listed under localPath to its
// destination under remotePrefix. The destination is the file path with
// stripPath removed, joined onto remotePrefix.
func GenerateUploadDict(lister FileLister, localPath, remotePrefix, stripPath string) (map[string]string, error) {
	files, err := lister.ListFiles(localPath)
	if err != nil {
		return nil, err
	}
	dict := make(map[string]string, len(files))
	for _, file := range files {
		rel := strings.TrimPrefix(file, stripPath)
		dict[file] = JoinRemote(remotePrefix, rel)
	}
	return dict, nil
}

// JoinRemote joins rel onto a remote prefix such as gs://bucket/dir. The
// scheme separator survives; duplicate and leading separators do not.
func JoinRemote(prefix, rel string) string {
	scheme := ""
	rest := prefix
	if i := strings.Index(prefix, "://"); i >= 0 {
		scheme = prefix[:i+3]
		rest = prefix[i+3:]
	}
	rel = strings.TrimLeft(filepath.ToSlash(rel), "/")
	joined := path.Join(rest, rel)
	if scheme != "" {
		joined = strings.TrimLeft(joined, "/")
	}
	return scheme + joined
}
