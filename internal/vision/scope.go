package vision

import "sync"

// Scope collects Mats acquired during one pipeline pass and releases them in
// reverse order of acquisition when closed.
//
//	scope := vision.NewScope()
//	defer scope.Close()
//	gray, err := scope.Keep(backend.Gray(src))
type Scope struct {
	mu   sync.Mutex
	mats []Mat
}

func NewScope() *Scope {
	return &Scope{}
}

// Track registers m for release and returns it. A nil Mat is ignored.
func (s *Scope) Track(m Mat) Mat {
	if m == nil {
		return nil
	}
	s.mu.Lock()
	s.mats = append(s.mats, m)
	s.mu.Unlock()
	return m
}

// Keep is Track for the (Mat, error) result of a backend call.
func (s *Scope) Keep(m Mat, err error) (Mat, error) {
	s.Track(m)
	return m, err
}

// Len reports how many Mats are still tracked.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mats)
}

// Close releases every tracked Mat, last acquired first. It may be called
// more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	mats := s.mats
	s.mats = nil
	s.mu.Unlock()
	for i := len(mats) - 1; i >= 0; i-- {
		mats[i].Release()
	}
}
