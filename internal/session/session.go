// Package session collects scanned pages into one document: pages can be
// added, the last one retaken, and the whole set exported as a single PDF.
package session

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ivlev/scan2pdf/internal/label"
	"github.com/ivlev/scan2pdf/internal/pdfdoc"
	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/scanner"
)

// ThumbnailSize bounds the preview kept for each page.
const ThumbnailSize = 160

// Options configures a Session.
type Options struct {
	Writer pdfdoc.WriterOptions
	// LabelSize > 0 stamps a QR label of that many pixels on every page.
	LabelSize int
	Log       logrus.FieldLogger
}

// Page is one scanned page, already exported as a single-page PDF.
type Page struct {
	ID        uuid.UUID
	Number    int
	Source    string
	Detector  string
	Result    *scanner.Result
	PDF       []byte
	Thumbnail image.Image
	Label     string
	AddedAt   time.Time
}

// Session is safe for concurrent use.
type Session struct {
	id      uuid.UUID
	created time.Time
	opts    Options
	log     logrus.FieldLogger

	mu    sync.Mutex
	pages []*Page
}

func New(opts Options) *Session {
	id := uuid.New()
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		id:      id,
		created: time.Now(),
		opts:    opts,
		log:     log.WithField("session", id.String()),
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Add exports res as the next page. source names where the image came from.
func (s *Session) Add(source string, res *scanner.Result) (*Page, error) {
	if res == nil || res.Page.Image == nil {
		return nil, scanerr.InvalidInput("session", "no scan result to add")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	number := len(s.pages) + 1
	out := res.Page
	var text string
	if s.opts.LabelSize > 0 {
		text = label.Content(s.id.String(), number)
		stamped, err := label.Stamp(out.Image, text, s.opts.LabelSize)
		if err != nil {
			return nil, err
		}
		out.Image = stamped
	}

	doc, err := pdfdoc.Export(out, s.opts.Writer)
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:        uuid.New(),
		Number:    number,
		Source:    source,
		Detector:  res.Detector,
		Result:    res,
		PDF:       doc,
		Thumbnail: imaging.Fit(res.Image, ThumbnailSize, ThumbnailSize, imaging.Lanczos),
		Label:     text,
		AddedAt:   time.Now(),
	}
	s.pages = append(s.pages, page)
	s.log.WithFields(logrus.Fields{"page": number, "source": source}).Info("page added")
	return page, nil
}

// Retake drops the last page so it can be scanned again.
func (s *Session) Retake() (*Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return nil, false
	}
	last := s.pages[len(s.pages)-1]
	s.pages = s.pages[:len(s.pages)-1]
	s.log.WithField("page", last.Number).Info("page dropped for retake")
	return last, true
}

// Cancel discards every page.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = nil
	s.log.Info("session cancelled")
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Pages returns the pages in order.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.pages...)
}

// Done merges all pages into one PDF and empties the session. The manifest
// describes the pages that went into the document.
func (s *Session) Done(ctx context.Context) ([]byte, *Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pages) == 0 {
		return nil, nil, scanerr.InvalidInput("session", "no pages to export")
	}
	docs := make([][]byte, len(s.pages))
	for i, p := range s.pages {
		docs[i] = p.PDF
	}
	merged, err := pdfdoc.Merge(ctx, docs)
	if err != nil {
		return nil, nil, err
	}

	m := s.manifestLocked()
	s.log.WithField("pages", len(s.pages)).Info("session exported")
	s.pages = nil
	return merged, m, nil
}

// Manifest describes the current pages.
func (s *Session) Manifest() *Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifestLocked()
}

func (s *Session) manifestLocked() *Manifest {
	m := &Manifest{
		Version: ManifestVersion,
		Session: s.id.String(),
		Created: s.created.UTC().Truncate(time.Second),
	}
	for _, p := range s.pages {
		res := p.Result
		mp := ManifestPage{
			ID:       p.ID.String(),
			Number:   p.Number,
			Source:   p.Source,
			Detector: p.Detector,
			Pixels:   Size{W: res.Width, H: res.Height},
			Page: PageBox{
				Width:  res.Page.Width,
				Height: res.Page.Height,
				X:      res.Page.Placement.X,
				Y:      res.Page.Placement.Y,
				W:      res.Page.Placement.Width,
				H:      res.Page.Placement.Height,
			},
			Label: p.Label,
		}
		for _, c := range res.Corners {
			mp.Corners = append(mp.Corners, Point{X: c.X, Y: c.Y})
		}
		m.Pages = append(m.Pages, mp)
	}
	return m
}
