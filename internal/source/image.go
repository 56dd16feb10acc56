package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/system"
)

// ImageSource serves image files in name order. Photos are rotated according
// to their EXIF orientation.
type ImageSource struct {
	paths []string
}

// NewImageSource accepts image files and directories; directories contribute
// their images sorted by name.
func NewImageSource(paths ...string) (*ImageSource, error) {
	var all []string
	for _, path := range paths {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			all = append(all, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, entry := range entries {
			if !entry.IsDir() && system.IsImageFile(entry.Name()) {
				found = append(found, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(found)
		all = append(all, found...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no images found in %v", paths)
	}
	return &ImageSource{paths: all}, nil
}

func (s *ImageSource) PageCount() int {
	return len(s.paths)
}

func (s *ImageSource) PageName(index int) string {
	if index < 0 || index >= len(s.paths) {
		return ""
	}
	return filepath.Base(s.paths[index])
}

func (s *ImageSource) GetPageDimensions(index int) (float64, float64, error) {
	if index < 0 || index >= len(s.paths) {
		return 0, 0, scanerr.InvalidInput("source", "page %d out of range", index)
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, scanerr.InvalidInput("source", "%s: %v", filepath.Base(s.paths[index]), err)
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

// RenderPage decodes the image; dpi is ignored since photos have no page size.
func (s *ImageSource) RenderPage(index int, dpi int) (image.Image, error) {
	if index < 0 || index >= len(s.paths) {
		return nil, scanerr.InvalidInput("source", "page %d out of range", index)
	}
	img, err := imaging.Open(s.paths[index], imaging.AutoOrientation(true))
	if err != nil {
		return nil, scanerr.InvalidInput("source", "%s: %v", filepath.Base(s.paths[index]), err)
	}
	return img, nil
}

func (s *ImageSource) Close() error {
	return nil
}
