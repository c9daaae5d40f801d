package prompts

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type promptsFile struct {
	Prompts []*Prompt `yaml:"prompts"`
}

// YAMLFileStore persists the prompt list as a YAML file. A missing file is
// created with the default prompts.
type YAMLFileStore struct {
	mu    sync.Mutex
	path  string
	store *InMemoryStore
}

var _ Store = (*YAMLFileStore)(nil)

func NewYAMLFileStore(path string) (*YAMLFileStore, error) {
	if path == "" {
		return nil, errors.New("yaml prompt store path is required")
	}

	s := &YAMLFileStore{path: path}
	if err := s.loadFromDisk(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *YAMLFileStore) List(ctx context.Context) ([]*Prompt, error) {
	return s.store.List(ctx)
}

func (s *YAMLFileStore) Get(ctx context.Context, id string) (*Prompt, error) {
	return s.store.Get(ctx, id)
}

func (s *YAMLFileStore) Save(ctx context.Context, p *Prompt) (*Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, err := s.store.Save(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *YAMLFileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.persistLocked(ctx)
}

func (s *YAMLFileStore) loadFromDisk() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.store = NewInMemoryStore(DefaultPrompts(time.Now().UTC())...)
			return s.persistLocked(context.Background())
		}
		return errors.Wrapf(err, "could not read prompts from %s", s.path)
	}

	var f promptsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return errors.Wrapf(err, "could not parse prompts in %s", s.path)
	}
	s.store = NewInMemoryStore(f.Prompts...)
	return nil
}

func (s *YAMLFileStore) persistLocked(ctx context.Context) error {
	prompts, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(&promptsFile{Prompts: prompts})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
