package live

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scan2pdf/internal/geom"
	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/scanner"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// endlessFrames produces a new frame on every call.
type endlessFrames struct {
	n atomic.Int64
}

func (e *endlessFrames) Next(ctx context.Context) (Frame, error) {
	id := e.n.Add(1)
	return Frame{ID: fmt.Sprint(id), Image: image.NewGray(image.Rect(0, 0, 4, 4))}, nil
}

func TestLoopDropsFramesWhileBusy(t *testing.T) {
	release := make(chan struct{})
	var inflight, maxInflight atomic.Int32
	var calls atomic.Int32

	var mu sync.Mutex
	var rendered []string

	loop := &Loop{
		Frames:   &endlessFrames{},
		Interval: time.Millisecond,
		Log:      quietLogger(),
		Process: func(ctx context.Context, img image.Image) (*scanner.Result, error) {
			cur := inflight.Add(1)
			defer inflight.Add(-1)
			if cur > maxInflight.Load() {
				maxInflight.Store(cur)
			}
			if calls.Add(1) == 1 {
				<-release
				return &scanner.Result{}, nil
			}
			return nil, scanerr.NoDocumentFound("contours", "")
		},
		Render: func(f Frame, res *scanner.Result, err error) {
			mu.Lock()
			rendered = append(rendered, f.ID)
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	assert.Eventually(t, func() bool { return loop.Stats().Dropped >= 3 }, 2*time.Second, time.Millisecond)
	close(release)
	assert.Eventually(t, func() bool { return loop.Stats().Failed >= 1 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	stats := loop.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, int32(1), maxInflight.Load())
	mu.Lock()
	assert.Equal(t, "1", rendered[0])
	assert.Equal(t, int(stats.Processed+stats.Failed), len(rendered))
	mu.Unlock()
}

func TestLoopWaitsForInflightRun(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool

	loop := &Loop{
		Frames:   &endlessFrames{},
		Interval: time.Millisecond,
		Log:      quietLogger(),
		Process: func(ctx context.Context, img image.Image) (*scanner.Result, error) {
			if finished.Load() {
				return nil, nil
			}
			close(started)
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
			return &scanner.Result{}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load())
}

func TestLoopRequiresCollaborators(t *testing.T) {
	assert.Error(t, (&Loop{}).Run(context.Background()))
}

func TestDirFrames(t *testing.T) {
	dir := t.TempDir()
	frames := &DirFrames{Dir: dir}
	ctx := context.Background()

	_, err := frames.Next(ctx)
	assert.True(t, errors.Is(err, ErrNoFrame))

	path := filepath.Join(dir, "frame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 6, 3))))
	require.NoError(t, f.Close())

	frame, err := frames.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, path, frame.ID)
	assert.Equal(t, 6, frame.Image.Bounds().Dx())

	_, err = frames.Next(ctx)
	assert.True(t, errors.Is(err, ErrNoFrame))

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	_, err = frames.Next(ctx)
	assert.NoError(t, err)
}

func writeFrame(t *testing.T, path string, mod time.Time) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 4))))
	require.NoError(t, f.Close())
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestLoopKeepsFrameArrivingDuringRun(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFrame(t, filepath.Join(dir, "a.png"), now)

	firstStarted := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	var mu sync.Mutex
	var rendered []string

	loop := &Loop{
		Frames:   &DirFrames{Dir: dir},
		Interval: time.Millisecond,
		Log:      quietLogger(),
		Process: func(ctx context.Context, img image.Image) (*scanner.Result, error) {
			if calls.Add(1) == 1 {
				close(firstStarted)
				<-release
			}
			return &scanner.Result{}, nil
		},
		Render: func(f Frame, res *scanner.Result, err error) {
			mu.Lock()
			rendered = append(rendered, filepath.Base(f.ID))
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-firstStarted
	writeFrame(t, filepath.Join(dir, "b.png"), now.Add(time.Minute))
	assert.Eventually(t, func() bool { return loop.Stats().Dropped >= 3 }, 2*time.Second, time.Millisecond)
	close(release)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rendered) == 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, []string{"a.png", "b.png"}, rendered)
	mu.Unlock()
	assert.Equal(t, uint64(2), loop.Stats().Processed)
}

func TestHighlight(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 100, 80))
	res := &scanner.Result{Corners: geom.RectQuad(10, 10, 90, 70)}

	out := Highlight(frame, res)
	assert.Equal(t, HighlightColor, out.NRGBAAt(50, 10))
	assert.Equal(t, HighlightColor, out.NRGBAAt(10, 40))
	assert.Equal(t, HighlightColor, out.NRGBAAt(90, 40))
	assert.Equal(t, HighlightColor, out.NRGBAAt(50, 70))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(50, 40))
	// The frame itself is untouched.
	assert.Equal(t, uint8(0), frame.GrayAt(50, 10).Y)

	plain := Highlight(frame, nil)
	assert.Equal(t, color.NRGBA{A: 255}, plain.NRGBAAt(50, 10))
}

func TestSavePreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live_preview.png")
	require.NoError(t, SavePreview(path, image.NewGray(image.Rect(0, 0, 8, 6))))
	require.NoError(t, SavePreview(path, image.NewGray(image.Rect(0, 0, 5, 5))))

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
