package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveMaterialsFiltersByExtensionAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "ignore.txt", "c.WEBP"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := resolveMaterials(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 image files, got %d: %v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Errorf("expected sorted output, got %v", got)
		}
	}
}

func TestResolveMaterialsMissingDirYieldsNoImages(t *testing.T) {
	got, err := resolveMaterials(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no images for missing dir, got %v", got)
	}
}

func TestResolveMaterialsEmptyPathYieldsNoImages(t *testing.T) {
	got, err := resolveMaterials("")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for empty path, got %v", got)
	}
}
