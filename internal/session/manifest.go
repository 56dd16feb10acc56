package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ManifestVersion = "1.0"

// Manifest describes an exported session.
type Manifest struct {
	Version string         `yaml:"version"`
	Session string         `yaml:"session"`
	Created time.Time      `yaml:"created"`
	Output  string         `yaml:"output,omitempty"`
	Pages   []ManifestPage `yaml:"pages"`
}

// ManifestPage records how one page was produced.
type ManifestPage struct {
	ID       string  `yaml:"id"`
	Number   int     `yaml:"number"`
	Source   string  `yaml:"source"`
	Detector string  `yaml:"detector"`
	Corners  []Point `yaml:"corners,omitempty"`
	Pixels   Size    `yaml:"pixels"`
	Page     PageBox `yaml:"page"`
	Label    string  `yaml:"label,omitempty"`
}

type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type Size struct {
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// PageBox is the page size and image placement in points.
type PageBox struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	W      float64 `yaml:"w"`
	H      float64 `yaml:"h"`
}

// WriteManifest writes a manifest to a YAML file
func WriteManifest(m *Manifest, path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadManifest reads a manifest from a YAML file
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %q", m.Version)
	}

	return &m, nil
}

// ManifestPath returns the manifest file that accompanies a PDF.
func ManifestPath(pdfPath string) string {
	return strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".yaml"
}

// GenerateOutputPath creates a timestamped PDF filename in dir
func GenerateOutputPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("scan_%s.pdf", now.Format("2006-01-02_15-04-05")))
}
