package config

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scan2pdf/internal/scanner"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.PageOptions()
	require.NoError(t, err)
	assert.Equal(t, scanner.PolicyStretch, opts.Policy)
	assert.Equal(t, scanner.A4, opts.Size)
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--policy=fit", "--page-size=letter", "--quality", "80",
		"--detector=manual", "--crop=10,20,110,220", "-w", "3",
		"--field-value=value.json", "--thumbnails=thumbs", "--preview",
		"photo1.jpg", "photo2.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"photo1.jpg", "photo2.jpg"}, cfg.InputPaths)
	assert.Equal(t, 80, cfg.JPEGQuality)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "value.json", cfg.FieldValue)
	assert.Equal(t, "thumbs", cfg.Thumbnails)
	assert.True(t, cfg.Preview)

	opts, err := cfg.PageOptions()
	require.NoError(t, err)
	assert.Equal(t, scanner.PolicyFit, opts.Policy)
	assert.Equal(t, scanner.Letter, opts.Size)

	crop, err := cfg.CropRect()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(10, 20, 110, 220), crop)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SCAN2PDF_PAGE_WIDTH", "595")
	t.Setenv("SCAN2PDF_PAGE_HEIGHT", "842")
	t.Setenv("SCAN2PDF_LIVE_INTERVAL", "250ms")

	cfg, err := Load([]string{"in"})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.LiveInterval)

	opts, err := cfg.PageOptions()
	require.NoError(t, err)
	assert.Equal(t, 595.0, opts.Size.Width)
	assert.Equal(t, 842.0, opts.Size.Height)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan2pdf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy: fit-preserve-aspect\nlabel: 96\n"), 0644))

	cfg, err := Load([]string{"--config", path, "in"})
	require.NoError(t, err)
	assert.Equal(t, "fit-preserve-aspect", cfg.Policy)
	assert.Equal(t, 96, cfg.LabelSize)

	// Flags win over the file.
	cfg, err = Load([]string{"--config", path, "--policy=stretch", "in"})
	require.NoError(t, err)
	assert.Equal(t, "stretch", cfg.Policy)
}

func TestLoadVersion(t *testing.T) {
	_, err := Load([]string{"--version"})
	assert.True(t, errors.Is(err, ErrVersionRequested))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"bad quality", func(c *Config) { c.JPEGQuality = 101 }},
		{"bad approx", func(c *Config) { c.ApproxFactor = 0 }},
		{"bad policy", func(c *Config) { c.Policy = "zoom" }},
		{"bad page", func(c *Config) { c.PageSize = "a0" }},
		{"half page size", func(c *Config) { c.PageWidth = 100 }},
		{"manual without crop", func(c *Config) { c.Detector = "manual" }},
		{"empty crop", func(c *Config) { c.Detector = "manual"; c.Crop = "10,10,10,50" }},
		{"live many inputs", func(c *Config) { c.Live = true; c.InputPaths = []string{"a", "b"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
