package prebuilt

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Entry is one "key value" line of a version file.
type Entry struct {
	Key   string
	Value string
}

// ReadLocalFile parses a version file. Lines without a value are ignored.
func ReadLocalFile(path string) ([]Entry, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, line := range lines {
		key, value, ok := splitEntry(line)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

// UpdateLocalFile sets key to value. An existing line for key is rewritten
// in place and any later duplicates are dropped; a new key is appended. The
// file is created when missing and replaced atomically.
func UpdateLocalFile(path, key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("prebuilt: invalid version key %q", key)
	}
	// Values may hold single spaces; any other whitespace would not read back.
	if value == "" || strings.IndexFunc(value, func(r rune) bool { return r != ' ' && unicode.IsSpace(r) }) >= 0 {
		return fmt.Errorf("prebuilt: invalid value %q for %s", value, key)
	}
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	updated := make([]string, 0, len(lines)+1)
	found := false
	for _, line := range lines {
		lineKey, _, ok := splitEntry(line)
		if ok && lineKey == key {
			if found {
				continue
			}
			found = true
			updated = append(updated, key+" "+value)
			continue
		}
		updated = append(updated, line)
	}
	if !found {
		updated = append(updated, key+" "+value)
	}
	return writeLines(path, updated)
}

// splitEntry cuts a line at its first run of whitespace. The value keeps
// its inner spacing.
func splitEntry(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return "", "", false
	}
	return line[:i], strings.TrimSpace(line[i:]), true
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("prebuilt: read %s: %w", path, err)
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func writeLines(path string, lines []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("prebuilt: create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	content := strings.Join(lines, "\n") + "\n"
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("prebuilt: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prebuilt: close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("prebuilt: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("prebuilt: replace %s: %w", path, err)
	}
	return nil
}
