package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNewMissingVault(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("New succeeded on a missing vault")
	}
}

func TestWriteDataFile(t *testing.T) {
	root := t.TempDir()
	w, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	fm := map[string]any{"type": "imessage-daily", "date": "2026-02-17"}
	path, err := w.WriteDataFile("messages", "2026-02-17.md", fm, "# Messages — 2026-02-17\n\nbody\n")
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(root, "data", "messages", "2026-02-17.md") {
		t.Fatalf("path=%s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)
	if !strings.HasPrefix(content, "---\n") {
		t.Fatalf("missing opening fence:\n%s", content)
	}
	parts := strings.SplitN(content, "---\n", 3)
	if len(parts) != 3 {
		t.Fatalf("frontmatter fences malformed:\n%s", content)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &parsed); err != nil {
		t.Fatalf("frontmatter not valid YAML: %v", err)
	}
	if parsed["date"] != "2026-02-17" {
		t.Fatalf("frontmatter date=%v", parsed["date"])
	}
	if !strings.Contains(parts[2], "# Messages — 2026-02-17") {
		t.Fatalf("body missing:\n%s", parts[2])
	}
	if strings.Contains(content, ".tmp") {
		t.Fatal("temp artifact leaked into content")
	}
}

func TestWriteDataFileOverwrites(t *testing.T) {
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := w.WriteDataFile("messages", "day.md", map[string]any{"v": 1}, "first"); err != nil {
		t.Fatal(err)
	}
	path, err := w.WriteDataFile("messages", "day.md", map[string]any{"v": 2}, "second")
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "second") || strings.Contains(string(raw), "first") {
		t.Fatalf("overwrite failed:\n%s", raw)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("stray files left behind: %v", entries)
	}
}
