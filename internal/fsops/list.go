package fsops

import (
	"os"
	"sort"
	"strings"
)

// List returns the names of regular files directly under the root whose
// name ends in ext (all files when ext is empty), sorted. Hidden files are skipped.
func (r *Root) List(ext string) ([]string, error) {
	entries, err := os.ReadDir(r.abs)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if ext != "" && !strings.HasSuffix(name, ext) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
