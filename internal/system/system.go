package system

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// ImageExtensions are the raster formats accepted as scan input.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".tif", ".tiff", ".bmp"}

// IsImageFile reports whether name has one of ImageExtensions.
func IsImageFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range ImageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindLatestImage returns the most recently modified image in path. If path is
// a file, its directory is searched.
func FindLatestImage(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	searchDir := path
	if !fi.IsDir() {
		searchDir = filepath.Dir(path)
	}

	files, err := os.ReadDir(searchDir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !IsImageFile(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(searchDir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no images found in %s", searchDir)
	}

	return latestFile, nil
}

// bytesPerMegapixel is a rough working-set estimate for one pipeline run:
// RGBA source, gray, mask, contour labels and the warped RGBA output.
const bytesPerMegapixel = 16 << 20

// RecommendedWorkers caps the requested worker count so that concurrent
// pipeline runs on images of the given size fit into half of the available
// memory. It never returns less than 1.
func RecommendedWorkers(requested int, megapixels float64) int {
	if requested <= 0 {
		requested = runtime.NumCPU()
	}
	if megapixels <= 0 {
		return requested
	}

	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return requested
	}

	perRun := megapixels * bytesPerMegapixel
	fit := int(float64(vm.Available) / 2 / perRun)
	if fit < 1 {
		fit = 1
	}
	if fit < requested {
		return fit
	}
	return requested
}
