package system

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindLatestImage(t *testing.T) {
	dir := t.TempDir()

	files := []string{"page_a.jpg", "page_b.png", "notes.txt", "page_c.webp"}
	for i, name := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}
		modTime := time.Now().Add(time.Duration(i) * time.Hour)
		os.Chtimes(p, modTime, modTime)
	}

	latest, err := FindLatestImage(dir)
	if err != nil {
		t.Fatalf("FindLatestImage failed: %v", err)
	}
	if filepath.Base(latest) != "page_c.webp" {
		t.Errorf("Expected page_c.webp, got %s", latest)
	}

	// A file path searches its directory
	latest, err = FindLatestImage(filepath.Join(dir, "page_a.jpg"))
	if err != nil {
		t.Fatalf("FindLatestImage on file failed: %v", err)
	}
	if filepath.Base(latest) != "page_c.webp" {
		t.Errorf("Expected page_c.webp, got %s", latest)
	}
}

func TestFindLatestImageEmpty(t *testing.T) {
	if _, err := FindLatestImage(t.TempDir()); err == nil {
		t.Error("Expected error for empty directory")
	}
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"scan.JPG", true},
		{"scan.tiff", true},
		{"scan.pdf", false},
		{"jpg", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsImageFile(tt.name); got != tt.want {
				t.Errorf("IsImageFile(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestImagePoolReuse(t *testing.T) {
	pool := NewImagePool()
	rect := image.Rect(0, 0, 32, 16)

	rgba := pool.GetRGBA(rect)
	if rgba.Rect != rect {
		t.Fatalf("Expected rect %v, got %v", rect, rgba.Rect)
	}
	pool.PutRGBA(rgba)

	gray := pool.GetGray(rect)
	if gray.Rect != rect {
		t.Fatalf("Expected rect %v, got %v", rect, gray.Rect)
	}
	pool.PutGray(gray)

	// Unknown sizes and nil are ignored
	pool.PutRGBA(image.NewRGBA(image.Rect(0, 0, 3, 3)))
	pool.PutGray(nil)
}

func TestRecommendedWorkers(t *testing.T) {
	if got := RecommendedWorkers(4, 0); got != 4 {
		t.Errorf("Expected 4 workers without size hint, got %d", got)
	}
	got := RecommendedWorkers(8, 12)
	if got < 1 || got > 8 {
		t.Errorf("Expected 1..8 workers, got %d", got)
	}
	if got := RecommendedWorkers(2, 1e9); got != 1 {
		t.Errorf("Expected a single worker for huge images, got %d", got)
	}
}
