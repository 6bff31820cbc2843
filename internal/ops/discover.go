package ops

import (
	"os"
	"path/filepath"
)

// DiscoverManifests returns root/<name> followed by <child>/<name> for every
// immediate child directory of root, in directory-name order. It does not descend further.
func DiscoverManifests(root, name string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var found []string
	if isRegularFile(filepath.Join(root, name)) {
		found = append(found, filepath.Join(root, name))
	}
	// os.ReadDir returns entries sorted by filename
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p := filepath.Join(root, entry.Name(), name)
		if isRegularFile(p) {
			found = append(found, p)
		}
	}
	return found, nil
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
