// Package live drives the scanner from a stream of camera frames, keeping
// only the newest frame: ticks that fall while a scan is running are dropped
// rather than queued.
package live

import (
	"context"
	"errors"
	"image"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/scanner"
	"github.com/ivlev/scan2pdf/internal/system"
)

// ErrNoFrame is returned by a FrameSource that has nothing new.
var ErrNoFrame = errors.New("no new frame")

// DefaultInterval approximates one display refresh.
const DefaultInterval = time.Second / 60

// Frame is one captured image.
type Frame struct {
	ID    string
	Image image.Image
}

// FrameSource yields the most recent frame.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// ProcessFunc runs the pipeline on a frame.
type ProcessFunc func(ctx context.Context, img image.Image) (*scanner.Result, error)

// RenderFunc shows the outcome of a run: either a result or the error.
type RenderFunc func(f Frame, res *scanner.Result, err error)

// Stats counts what happened to the frames seen by a Loop. Dropped counts
// ticks skipped while a scan was running.
type Stats struct {
	Processed uint64
	Dropped   uint64
	Failed    uint64
}

type Loop struct {
	Frames   FrameSource
	Process  ProcessFunc
	Render   RenderFunc
	Interval time.Duration
	Log      logrus.FieldLogger

	busy      atomic.Bool
	processed atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// Run polls for frames until ctx is cancelled, then waits for the scan in
// flight to finish. Cancellation is a normal stop and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if l.Frames == nil || l.Process == nil {
		return errors.New("live loop needs a frame source and a process function")
	}
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	var inflight sync.WaitGroup
	defer inflight.Wait()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.WithFields(logrus.Fields{
				"processed": l.processed.Load(),
				"dropped":   l.dropped.Load(),
				"failed":    l.failed.Load(),
			}).Info("live loop stopped")
			return nil
		case <-ticker.C:
		}

		// A tick during a run skips acquisition, so the source still holds
		// its newest frame once the run finishes.
		if l.busy.Load() {
			l.dropped.Add(1)
			continue
		}

		frame, err := l.Frames.Next(ctx)
		if errors.Is(err, ErrNoFrame) {
			continue
		}
		if err != nil {
			log.WithError(err).Warn("frame acquisition failed")
			continue
		}
		l.busy.Store(true)

		inflight.Add(1)
		go func(f Frame) {
			defer inflight.Done()
			defer l.busy.Store(false)

			res, err := l.Process(ctx, f.Image)
			if err != nil {
				l.failed.Add(1)
				log.WithField("frame", f.ID).WithField("reason", scanerr.UserMessage(err)).Debug(err)
			} else {
				l.processed.Add(1)
			}
			if l.Render != nil {
				l.Render(f, res, err)
			}
		}(frame)
	}
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Processed: l.processed.Load(),
		Dropped:   l.dropped.Load(),
		Failed:    l.failed.Load(),
	}
}

// DirFrames treats the newest image in a directory as the current camera
// frame, e.g. a folder a tethered camera writes into.
type DirFrames struct {
	Dir string

	mu      sync.Mutex
	last    string
	lastMod time.Time
}

func (d *DirFrames) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	path, err := system.FindLatestImage(d.Dir)
	if err != nil {
		return Frame{}, ErrNoFrame
	}
	info, err := os.Stat(path)
	if err != nil {
		return Frame{}, ErrNoFrame
	}

	d.mu.Lock()
	if path == d.last && info.ModTime().Equal(d.lastMod) {
		d.mu.Unlock()
		return Frame{}, ErrNoFrame
	}
	d.last, d.lastMod = path, info.ModTime()
	d.mu.Unlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Frame{}, scanerr.InvalidInput("live", "%s: %v", path, err)
	}
	return Frame{ID: path, Image: img}, nil
}
