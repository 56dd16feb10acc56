package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ivlev/scan2pdf/internal/scanner"
	"github.com/ivlev/scan2pdf/internal/vision"
)

const (
	EnvPrefix = "SCAN2PDF"

	DefaultDPI          = 200
	DefaultJPEGQuality  = 90
	DefaultLogLevel     = "info"
	DefaultLiveInterval = time.Second / 60
)

// ErrVersionRequested is returned by Load when --version was passed.
var ErrVersionRequested = errors.New("version requested")

type Config struct {
	InputPaths   []string
	OutputPDF    string
	Workers      int
	DPI          int
	Backend      string
	Detector     string
	Crop         string
	ApproxFactor float64
	PageSize     string
	PageWidth    float64
	PageHeight   float64
	Policy       string
	MaxDPI       float64
	JPEGQuality  int
	Title        string
	LabelSize    int
	Manifest     bool
	FieldValue   string
	Thumbnails   string
	Preview      bool
	Strict       bool
	ShowStats    bool
	Live         bool
	LiveInterval time.Duration
	LivePreview  string
	LogLevel     string
	BuildVersion string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workers:      runtime.NumCPU(),
		DPI:          DefaultDPI,
		Backend:      vision.DefaultBackend,
		Detector:     "contour",
		ApproxFactor: scanner.DefaultApproxFactor,
		PageSize:     "a4",
		Policy:       string(scanner.PolicyStretch),
		JPEGQuality:  DefaultJPEGQuality,
		Manifest:     true,
		LiveInterval: DefaultLiveInterval,
		LogLevel:     DefaultLogLevel,
	}
}

// LoadFromFlags reads .env, the environment, an optional config file and the
// command line, in increasing order of precedence.
func LoadFromFlags() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return Load(os.Args[1:])
}

// Load builds a configuration from args and the environment.
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("scan2pdf", pflag.ContinueOnError)
	defineFlags(fs, cfg)
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if ok, _ := fs.GetBool("version"); ok {
		return nil, ErrVersionRequested
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	populate(v, cfg)
	cfg.InputPaths = append(cfg.InputPaths, fs.Args()...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defineFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringSliceP("input", "i", nil, "Input images, directories or PDF files (also positional)")
	fs.StringP("output", "o", "", "Output PDF (default: scan_<timestamp>.pdf)")
	fs.IntP("workers", "w", cfg.Workers, "Parallel scans")
	fs.Int("dpi", cfg.DPI, "Resolution for rendering PDF input pages")
	fs.String("backend", cfg.Backend, fmt.Sprintf("Vision backend %v", vision.Available()))
	fs.String("detector", cfg.Detector, "Document detector: contour, manual, full")
	fs.String("crop", "", "Crop rectangle x0,y0,x1,y1 for the manual detector")
	fs.Float64("approx-factor", cfg.ApproxFactor, "Polygon tolerance as a fraction of the perimeter")
	fs.String("page-size", cfg.PageSize, "Page size: a4, letter, source")
	fs.Float64("page-width", 0, "Page width in points (overrides page-size)")
	fs.Float64("page-height", 0, "Page height in points (overrides page-size)")
	fs.String("policy", cfg.Policy, "Page policy: stretch-to-page or fit-preserve-aspect")
	fs.Float64("max-dpi", 0, "Downsample embedded images above this resolution (0 = off)")
	fs.Int("quality", cfg.JPEGQuality, "JPEG quality of embedded pages (1-100)")
	fs.String("title", "", "PDF document title")
	fs.Int("label", 0, "Stamp a QR label of this size in pixels on every page (0 = off)")
	fs.Bool("manifest", cfg.Manifest, "Write a YAML manifest next to the PDF")
	fs.String("field-value", "", "Write the form field value (JSON array of documents) to this file")
	fs.String("thumbnails", "", "Write a thumbnail of every page into this directory")
	fs.Bool("preview", false, "Render the first page of the PDF to <output>_preview.png")
	fs.Bool("strict", false, "Abort on the first page that cannot be scanned")
	fs.Bool("stats", false, "Show performance statistics")
	fs.Bool("live", false, "Watch the input directory and scan the newest image continuously")
	fs.Duration("live-interval", cfg.LiveInterval, "Polling interval in live mode")
	fs.String("live-preview", "", "Live mode: frame with the detected outline (default: live_preview.png next to the PDF)")
	fs.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("config", "", "YAML config file")
	fs.BoolP("version", "v", false, "Print version and exit")
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: scan2pdf [options] <image|dir|pdf>...\n\n")
	fmt.Fprintf(os.Stderr, "Detects documents in photos, corrects perspective and writes a PDF.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEvery option can be set as %s_<OPTION> (dashes become underscores).\n", EnvPrefix)
}

func populate(v *viper.Viper, cfg *Config) {
	cfg.InputPaths = v.GetStringSlice("input")
	cfg.OutputPDF = v.GetString("output")
	cfg.Workers = v.GetInt("workers")
	cfg.DPI = v.GetInt("dpi")
	cfg.Backend = v.GetString("backend")
	cfg.Detector = v.GetString("detector")
	cfg.Crop = v.GetString("crop")
	cfg.ApproxFactor = v.GetFloat64("approx-factor")
	cfg.PageSize = v.GetString("page-size")
	cfg.PageWidth = v.GetFloat64("page-width")
	cfg.PageHeight = v.GetFloat64("page-height")
	cfg.Policy = v.GetString("policy")
	cfg.MaxDPI = v.GetFloat64("max-dpi")
	cfg.JPEGQuality = v.GetInt("quality")
	cfg.Title = v.GetString("title")
	cfg.LabelSize = v.GetInt("label")
	cfg.Manifest = v.GetBool("manifest")
	cfg.FieldValue = v.GetString("field-value")
	cfg.Thumbnails = v.GetString("thumbnails")
	cfg.Preview = v.GetBool("preview")
	cfg.Strict = v.GetBool("strict")
	cfg.ShowStats = v.GetBool("stats")
	cfg.Live = v.GetBool("live")
	cfg.LiveInterval = v.GetDuration("live-interval")
	cfg.LivePreview = v.GetString("live-preview")
	cfg.LogLevel = v.GetString("loglevel")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.DPI < 1 {
		return errors.New("dpi must be positive")
	}
	if c.ApproxFactor <= 0 || c.ApproxFactor >= 1 {
		return errors.New("approx-factor must be between 0 and 1")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("quality must be between 1 and 100")
	}
	if c.LabelSize < 0 {
		return errors.New("label size cannot be negative")
	}
	if (c.PageWidth > 0) != (c.PageHeight > 0) || c.PageWidth < 0 || c.PageHeight < 0 {
		return errors.New("page-width and page-height must be set together and be positive")
	}
	if _, err := c.PageOptions(); err != nil {
		return err
	}
	if c.Detector == "manual" {
		if _, err := c.CropRect(); err != nil {
			return err
		}
	}
	if c.Live && len(c.InputPaths) > 1 {
		return errors.New("live mode watches a single directory")
	}
	if c.Live && c.LiveInterval <= 0 {
		return errors.New("live-interval must be positive")
	}
	return nil
}

// PageOptions resolves the page settings for the Page Fitter.
func (c *Config) PageOptions() (scanner.PageOptions, error) {
	policy, err := scanner.ParsePolicy(c.Policy)
	if err != nil {
		return scanner.PageOptions{}, err
	}
	size, err := scanner.LookupPageSize(c.PageSize)
	if err != nil {
		return scanner.PageOptions{}, err
	}
	if c.PageWidth > 0 && c.PageHeight > 0 {
		size = scanner.PageSize{Name: "custom", Width: c.PageWidth, Height: c.PageHeight}
	}
	return scanner.PageOptions{Policy: policy, Size: size, MaxDPI: c.MaxDPI}, nil
}

// CropRect parses Crop as "x0,y0,x1,y1".
func (c *Config) CropRect() (image.Rectangle, error) {
	parts := strings.Split(c.Crop, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("crop must be x0,y0,x1,y1, got %q", c.Crop)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("crop: %w", err)
		}
		v[i] = n
	}
	r := image.Rect(v[0], v[1], v[2], v[3])
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("crop %q is empty", c.Crop)
	}
	return r, nil
}
