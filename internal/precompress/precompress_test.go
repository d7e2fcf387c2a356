package precompress

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

func writeTree(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		fn := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(fn, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func equalSorted(a, b []string) bool {
	a = append([]string{}, a...)
	b = append([]string{}, b...)
	sort.Strings(a)
	sort.Strings(b)
	return strings.Join(a, ",") == strings.Join(b, ",")
}

// TestIsSidecar tests sidecar extension detection
func TestIsSidecar(t *testing.T) {
	testCases := map[string]bool{
		"main.css":         false,
		"main.css.gz":      true,
		"main.css.br":      true,
		"main.css.zst":     true,
		"main.css.deflate": true,
		"main.css.Z":       true,
		"main.css.z":       false,
	}
	for name, expected := range testCases {
		if got := IsSidecar(name); got != expected {
			t.Errorf("IsSidecar(%q): expected %v, got %v", name, expected, got)
		}
	}
}

// TestSetCommand tests overriding a compressor with a quoted command line
func TestSetCommand(t *testing.T) {
	comps := DefaultCompressors()
	if err := SetCommand(comps, ".gz", `pigz -k -11 --comment "themed site"`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"pigz", "-k", "-11", "--comment", "themed site"}
	if strings.Join(comps[0].Command, "|") != strings.Join(expected, "|") {
		t.Errorf("expected %q, got %q", expected, comps[0].Command)
	}
	if comps[1].Command[0] != "brotli" {
		t.Errorf("expected brotli untouched, got %q", comps[1].Command)
	}
	if DefaultCompressors()[0].Command[0] != "gzip" {
		t.Error("defaults were modified")
	}

	if err := SetCommand(comps, ".lz", "lz4"); err == nil {
		t.Error("expected error for unknown extension")
	}
	if err := SetCommand(comps, ".gz", ""); err == nil {
		t.Error("expected error for empty command")
	}
}

// TestCompress_DryRun tests size limits, sidecar skipping and up-to-date detection
func TestCompress_DryRun(t *testing.T) {
	big := strings.Repeat("body { color: red; }\n", 20)
	dir := writeTree(t, map[string]string{
		"index.html":         big,
		"styles/main.css":    big,
		"styles/main.css.gz": "old",
		"styles/main.css.br": "new",
		"tiny.txt":           "x",
		"huge.bin":           strings.Repeat("z", 4096),
	})
	now := time.Now()
	os.Chtimes(filepath.Join(dir, "styles/main.css"), now, now)
	os.Chtimes(filepath.Join(dir, "styles/main.css.gz"), now.Add(-time.Hour), now.Add(-time.Hour))
	os.Chtimes(filepath.Join(dir, "styles/main.css.br"), now.Add(time.Hour), now.Add(time.Hour))

	created, err := Compress(context.Background(), Options{Dir: dir, DryRun: true, MinSize: 128, MaxSize: 1024})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{
		"index.html.gz", "index.html.br", "index.html.zst",
		"styles/main.css.gz", "styles/main.css.zst",
	}
	if !equalSorted(created, expected) {
		t.Errorf("expected %v, got %v", expected, created)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.html.gz")); err == nil {
		t.Error("dry run created a file")
	}
}

// TestCompress_Command tests running a compressor and dropping sidecars that did not shrink
func TestCompress_Command(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	dir := writeTree(t, map[string]string{
		"a.html": strings.Repeat("a", 200),
	})
	comps := []Compressor{
		// writes a 3 byte sidecar
		{Ext: ".gz", Command: []string{"sh", "-c", `printf abc > "$0.gz"`}},
		// writes a sidecar larger than the original
		{Ext: ".br", Command: []string{"sh", "-c", `head -c 300 /dev/zero > "$0.br"`}},
	}

	created, err := Compress(context.Background(), Options{Dir: dir, Compressors: comps})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equalSorted(created, []string{"a.html.gz"}) {
		t.Errorf("expected only a.html.gz, got %v", created)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.html.br")); err == nil {
		t.Error("expected larger sidecar to be removed")
	}
}

// TestCompress_CommandFails tests that a failing compressor stops the walk
func TestCompress_CommandFails(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.html": "aaaa"})
	comps := []Compressor{{Ext: ".gz", Command: []string{"/nonexistent/compressor"}}}

	if _, err := Compress(context.Background(), Options{Dir: dir, Compressors: comps}); err == nil {
		t.Error("expected error")
	}
}

// TestCleanup tests removing sidecars, optionally only stale ones
func TestCleanup(t *testing.T) {
	files := map[string]string{
		"index.html":         "home",
		"index.html.gz":      "g",
		"styles/main.css":    "css",
		"styles/main.css.br": "b",
	}
	now := time.Now()
	stamp := func(dir string) {
		os.Chtimes(filepath.Join(dir, "index.html"), now, now)
		os.Chtimes(filepath.Join(dir, "index.html.gz"), now.Add(-time.Hour), now.Add(-time.Hour))
		os.Chtimes(filepath.Join(dir, "styles/main.css"), now, now)
		os.Chtimes(filepath.Join(dir, "styles/main.css.br"), now.Add(time.Hour), now.Add(time.Hour))
	}

	t.Run("dry run", func(t *testing.T) {
		dir := writeTree(t, files)
		removed, err := Cleanup(Options{Dir: dir, DryRun: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !equalSorted(removed, []string{"index.html.gz", "styles/main.css.br"}) {
			t.Errorf("unexpected result %v", removed)
		}
		if _, err := os.Stat(filepath.Join(dir, "index.html.gz")); err != nil {
			t.Error("dry run removed a file")
		}
	})

	t.Run("all", func(t *testing.T) {
		dir := writeTree(t, files)
		removed, err := Cleanup(Options{Dir: dir})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(removed) != 2 {
			t.Errorf("expected 2 removed, got %v", removed)
		}
		if _, err := os.Stat(filepath.Join(dir, "styles/main.css.br")); err == nil {
			t.Error("expected sidecar to be removed")
		}
		if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
			t.Error("original was removed")
		}
	})

	t.Run("old only", func(t *testing.T) {
		dir := writeTree(t, files)
		stamp(dir)
		removed, err := Cleanup(Options{Dir: dir, OldOnly: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !equalSorted(removed, []string{"index.html.gz"}) {
			t.Errorf("expected only the stale sidecar, got %v", removed)
		}
	})
}
