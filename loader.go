package shade

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// Loader resolves a shader file or library name into its raw text. The
// compiler itself never touches the file system.
type Loader interface {
	Source(name string) (string, error)
}

// MapLoader serves sources from memory, keyed by file name.
type MapLoader map[string]string

// Source implements Loader.
func (m MapLoader) Source(name string) (string, error) {
	src, ok := m[normalizePath(name)]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, fs.ErrNotExist)
	}
	return src, nil
}

// fsLoader serves sources from an fs.FS below dir.
type fsLoader struct {
	fs  fs.FS
	dir string
}

func (l fsLoader) Source(name string) (string, error) {
	raw, err := fs.ReadFile(l.fs, path.Join(l.dir, normalizePath(name)))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// normalizePath cleans a file reference and normalizes slashes.
func normalizePath(n string) string {
	n = strings.TrimSpace(n)
	n = strings.Trim(n, `"' `)
	return path.Clean(filepath.ToSlash(n))
}

// normalizeName drops the extension of a file reference.
func normalizeName(n string) string {
	n = normalizePath(n)
	return strings.TrimSuffix(n, path.Ext(n))
}
