// Package knowledge reads the static knowledge files used to prime prompts.
package knowledge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Bundle maps file names to contents for the permanent and project sets.
type Bundle struct {
	Permanent map[string]string `json:"permanent"`
	Project   map[string]string `json:"project"`
}

// File is one named knowledge section.
type File struct {
	Name    string
	Content string
}

// Load reads every regular file directly under root/permanent and
// root/project. A missing directory yields an empty set.
func Load(root string) (Bundle, error) {
	permanent, err := loadDir(filepath.Join(root, "permanent"))
	if err != nil {
		return Bundle{}, err
	}
	project, err := loadDir(filepath.Join(root, "project"))
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{Permanent: permanent, Project: project}, nil
}

func loadDir(dir string) (map[string]string, error) {
	out := map[string]string{}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read knowledge file %s: %w", e.Name(), err)
		}
		out[e.Name()] = string(data)
	}
	return out, nil
}

// Files flattens the bundle: permanent first, then project, each sorted by name.
func (b Bundle) Files() []File {
	files := make([]File, 0, len(b.Permanent)+len(b.Project))
	files = append(files, sorted(b.Permanent)...)
	return append(files, sorted(b.Project)...)
}

// Len is the total number of files.
func (b Bundle) Len() int {
	return len(b.Permanent) + len(b.Project)
}

func sorted(m map[string]string) []File {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]File, 0, len(names))
	for _, name := range names {
		out = append(out, File{Name: name, Content: m[name]})
	}
	return out
}
