package prompts

import (
	"context"
	"slices"
	"sync"
	"time"
)

type Store interface {
	List(ctx context.Context) ([]*Prompt, error)
	Get(ctx context.Context, id string) (*Prompt, error)
	// Save updates the prompt with the same ID, or adds it in front of the
	// list when it is new. An empty ID gets a fresh one.
	Save(ctx context.Context, p *Prompt) (*Prompt, error)
	Delete(ctx context.Context, id string) error
}

// InMemoryStore is an ordered, thread-safe prompt list.
type InMemoryStore struct {
	mu      sync.RWMutex
	prompts []*Prompt
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore(prompts ...*Prompt) *InMemoryStore {
	s := &InMemoryStore{}
	for _, p := range prompts {
		if p == nil {
			continue
		}
		s.prompts = append(s.prompts, p.Clone())
	}
	return s
}

func (s *InMemoryStore) List(_ context.Context) ([]*Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Prompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, &NotFoundError{ID: id}
	}
	return s.prompts[idx].Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, p *Prompt) (*Prompt, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(p), nil
}

func (s *InMemoryStore) saveLocked(p *Prompt) *Prompt {
	saved := p.Clone()
	if saved.ID == "" {
		saved.ID = NewPromptID()
	}
	if saved.Timestamp.IsZero() {
		saved.Timestamp = time.Now().UTC()
	}

	if idx := s.indexLocked(saved.ID); idx >= 0 {
		s.prompts[idx] = saved
	} else {
		s.prompts = slices.Insert(s.prompts, 0, saved)
	}
	return saved.Clone()
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *InMemoryStore) deleteLocked(id string) error {
	idx := s.indexLocked(id)
	if idx < 0 {
		return &NotFoundError{ID: id}
	}
	s.prompts = slices.Delete(s.prompts, idx, idx+1)
	return nil
}

func (s *InMemoryStore) indexLocked(id string) int {
	return slices.IndexFunc(s.prompts, func(p *Prompt) bool { return p.ID == id })
}
