package store

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const chatFileExtension = ".json"

// FileChatStore keeps one JSON file per chat in a directory, named after the
// chat ID.
type FileChatStore struct {
	mu     sync.RWMutex
	dir    string
	closed bool
}

var _ ChatStore = (*FileChatStore)(nil)

func NewFileChatStore(dir string) (*FileChatStore, error) {
	if dir == "" {
		return nil, errors.New("file chat store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create chats directory %s", dir)
	}
	return &FileChatStore{dir: dir}, nil
}

func (s *FileChatStore) path(id conversation.ChatID) string {
	return filepath.Join(s.dir, id.String()+chatFileExtension)
}

func (s *FileChatStore) Get(_ context.Context, id conversation.ChatID) (*conversation.Document, error) {
	if err := ValidateChatID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, errors.Wrapf(err, "could not read chat %s", id)
	}
	doc, err := conversation.DecodeDocument(b)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode chat %s", id)
	}
	return doc, nil
}

// List returns every readable chat in the directory. Files that can't be
// decoded are skipped with a warning.
func (s *FileChatStore) List(_ context.Context) ([]*conversation.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not list chats in %s", s.dir)
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), chatFileExtension) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	out := make([]*conversation.Document, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "could not read %s", name)
		}
		doc, err := conversation.DecodeDocument(b)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("skipping unreadable chat file")
			continue
		}
		if doc.ID == "" {
			doc.ID = conversation.ChatID(strings.TrimSuffix(name, chatFileExtension))
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *FileChatStore) Put(_ context.Context, chat *conversation.Chat) error {
	if err := ValidateChatID(chat.ID); err != nil {
		return err
	}
	b, err := conversation.EncodeChat(chat)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	p := s.path(chat.ID)
	tmpPath := p + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return errors.Wrapf(err, "could not write chat %s", chat.ID)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return errors.Wrapf(err, "could not write chat %s", chat.ID)
	}
	return nil
}

func (s *FileChatStore) Delete(_ context.Context, id conversation.ChatID) error {
	if err := ValidateChatID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{ID: id}
		}
		return errors.Wrapf(err, "could not delete chat %s", id)
	}
	return nil
}

func (s *FileChatStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileChatStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
