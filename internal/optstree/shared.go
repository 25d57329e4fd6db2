package optstree

import "sync"

// Shared guards the process-wide tree. Every read or write of the shared
// tree goes through With so that concurrent call sites are serialised.
type Shared struct {
	mu   sync.Mutex
	tree *Tree
}

// NewShared wraps t. A nil t starts from Default.
func NewShared(t *Tree) *Shared {
	if t == nil {
		t = Default()
	}
	return &Shared{tree: t}
}

// With runs fn while holding the lock. fn must not retain the tree beyond
// the call when other goroutines may write to it.
func (s *Shared) With(fn func(*Tree) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.tree)
}

// Snapshot returns a private copy of the current shared tree.
func (s *Shared) Snapshot() *Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Clone()
}
