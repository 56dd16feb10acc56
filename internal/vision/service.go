package vision

import (
	"context"
	"sync"
)

// Service wraps a Backend so that its initialisation runs once and is shared by
// concurrent callers. A failed initialisation is retried on the next call.
type Service struct {
	Backend

	mu    sync.Mutex
	ready bool
}

// NewService wraps b.
func NewService(b Backend) *Service {
	return &Service{Backend: b}
}

func (s *Service) Ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Backend.Ready(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}
