package buildroot

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSelectorMissingBuildroot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "absent")
	sel := NewSelector(New(root))
	if sel.Exists() || sel.ChrootExists() || sel.BoardExists("x86-generic") {
		t.Fatalf("missing buildroot should report nothing present")
	}
}

func TestSelectorChrootRequiresDirectory(t *testing.T) {
	root := t.TempDir()
	sel := NewSelector(New(root))
	if sel.ChrootExists() {
		t.Fatalf("empty buildroot reported chroot")
	}
	if err := os.WriteFile(filepath.Join(root, "chroot"), []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	if sel.ChrootExists() {
		t.Fatalf("plain file named chroot should not count")
	}
	if err := os.Remove(filepath.Join(root, "chroot")); err != nil {
		t.Fatal(err)
	}
	mkdirs(t, root, "src/chroot")
	if sel.ChrootExists() {
		t.Fatalf("nested chroot should not count")
	}
	mkdirs(t, root, "chroot")
	if !sel.ChrootExists() {
		t.Fatalf("expected chroot to be detected")
	}
}

func TestSelectorBoardExists(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "chroot/build/x86-generic")
	sel := NewSelector(New(root))
	if !sel.BoardExists("x86-generic") {
		t.Fatalf("expected x86-generic board")
	}
	if sel.BoardExists("arm-generic") {
		t.Fatalf("arm-generic should be absent")
	}
	if sel.BoardExists("") {
		t.Fatalf("empty board must never exist")
	}
}

func TestSelectorReflectsLiveState(t *testing.T) {
	root := t.TempDir()
	sel := NewSelector(New(root))
	if sel.ChrootExists() {
		t.Fatalf("unexpected chroot")
	}
	mkdirs(t, root, "chroot")
	if !sel.ChrootExists() {
		t.Fatalf("selector cached a stale answer")
	}
	if err := os.RemoveAll(filepath.Join(root, "chroot")); err != nil {
		t.Fatal(err)
	}
	if sel.ChrootExists() {
		t.Fatalf("selector cached a stale answer after removal")
	}
}

func TestSelectorWithSyntheticTree(t *testing.T) {
	tree := fstest.MapFS{
		"b/chroot/build/x86-dogfood/packages/a.tbz2": &fstest.MapFile{},
	}
	stat := func(name string) (fs.FileInfo, error) {
		return fs.Stat(tree, filepath.ToSlash(name))
	}
	sel := NewSelectorWithStat(New("b"), stat)
	if !sel.Exists() || !sel.ChrootExists() || !sel.BoardExists("x86-dogfood") {
		t.Fatalf("synthetic tree not recognised")
	}
	if sel.BoardExists("x86-generic") {
		t.Fatalf("unexpected board")
	}
}

func TestLayoutPaths(t *testing.T) {
	l := New("/b/cbuild")
	if got := l.ScriptsDir(); got != "/b/cbuild/src/scripts" {
		t.Fatalf("ScriptsDir = %s", got)
	}
	if got := l.BoardDir("x86-generic"); got != "/b/cbuild/chroot/build/x86-generic" {
		t.Fatalf("BoardDir = %s", got)
	}
}
