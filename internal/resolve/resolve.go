// Package resolve maps the logical client entry names of a podlet (content,
// fallback, scripts, lazy) to on-disk source files.
package resolve

import (
	"os"
	"path/filepath"
)

// EntryNames lists the logical client entries in canonical order.
var EntryNames = []string{"content", "fallback", "scripts", "lazy"}

// ServerEntryNames lists the logical server entries.
var ServerEntryNames = []string{"build", "document", "server"}

// extensions are tried in order; the first existing file wins.
var extensions = []string{".js", ".ts"}

// Entry is the resolution result for one logical entry name.
type Entry struct {
	Name   string
	Path   string
	Exists bool
}

// Resolve maps a logical entry name to a source file under root. When no
// variant exists, Exists is false and Path holds the preferred (.js) location.
func Resolve(root, name string) Entry {
	for _, ext := range extensions {
		path := filepath.Join(root, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return Entry{Name: name, Path: path, Exists: true}
		}
	}
	return Entry{Name: name, Path: filepath.Join(root, name+extensions[0])}
}

// EntryPoints resolves all logical entries in canonical order.
func EntryPoints(root string) []Entry {
	entries := make([]Entry, 0, len(EntryNames))
	for _, name := range EntryNames {
		entries = append(entries, Resolve(root, name))
	}
	return entries
}

// Existing returns the paths of the entries present on disk, in canonical
// order. This is the entry-point list a build context is opened over.
func Existing(root string) []string {
	var paths []string
	for _, e := range EntryPoints(root) {
		if e.Exists {
			paths = append(paths, e.Path)
		}
	}
	return paths
}
