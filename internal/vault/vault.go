// Package vault writes markdown records with YAML frontmatter into an
// Obsidian-style vault. The vault indexes filesystem changes on its own, so
// an atomic file write is the whole sink contract.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Writer persists data files under <vault>/data/<folder>/.
type Writer struct {
	root string
}

// New validates the vault root and returns a Writer. The vault itself must
// already exist; only subfolders under data/ are created implicitly.
func New(root string) (*Writer, error) {
	expanded := expandHome(root)
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("vault not found: %s", abs)
	}
	return &Writer{root: abs}, nil
}

// Root returns the resolved vault root.
func (w *Writer) Root() string {
	return w.root
}

// WriteDataFile writes data/<folder>/<filename> with YAML frontmatter,
// replacing any existing file. The write is atomic: temp file, then rename,
// so a reader never sees a half-written record.
func (w *Writer) WriteDataFile(folder, filename string, frontmatter any, body string) (string, error) {
	dataDir := filepath.Join(w.root, "data", folder)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data folder: %w", err)
	}

	fm, err := yaml.Marshal(frontmatter)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	content := fmt.Sprintf("---\n%s---\n\n%s\n", string(fm), strings.TrimRight(body, "\n"))

	path := filepath.Join(dataDir, filename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize %s: %w", filename, err)
	}
	return path, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
