package orchestrator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// imageExtensions are the supported materials-directory image formats,
// grounded on the original content_sources/material_source.py's
// image_formats default list.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// resolveMaterials implements S2: enumerate supported image files under
// dir, sorted for determinism. An empty or missing dir yields no images,
// which the caller treats as "color background" mode.
func resolveMaterials(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}
