package store

import (
	"context"
	"slices"
	"sync"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

// InMemoryChatStore keeps encoded documents in a map. Every read decodes a
// fresh copy, so callers never share state with the store.
type InMemoryChatStore struct {
	mu     sync.RWMutex
	chats  map[conversation.ChatID][]byte
	closed bool
}

var _ ChatStore = (*InMemoryChatStore)(nil)

func NewInMemoryChatStore() *InMemoryChatStore {
	return &InMemoryChatStore{
		chats: map[conversation.ChatID][]byte{},
	}
}

func (s *InMemoryChatStore) Get(_ context.Context, id conversation.ChatID) (*conversation.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	payload, ok := s.chats[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return conversation.DecodeDocument(payload)
}

func (s *InMemoryChatStore) List(_ context.Context) ([]*conversation.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	ids := make([]conversation.ChatID, 0, len(s.chats))
	for id := range s.chats {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*conversation.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := conversation.DecodeDocument(s.chats[id])
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *InMemoryChatStore) Put(_ context.Context, chat *conversation.Chat) error {
	if err := ValidateChatID(chat.ID); err != nil {
		return err
	}
	payload, err := conversation.EncodeChat(chat)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.chats[chat.ID] = payload
	return nil
}

// PutRaw stores an already encoded document as is, which is how legacy
// documents get into a store.
func (s *InMemoryChatStore) PutRaw(id conversation.ChatID, payload []byte) error {
	if err := ValidateChatID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.chats[id] = slices.Clone(payload)
	return nil
}

func (s *InMemoryChatStore) Delete(_ context.Context, id conversation.ChatID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if _, ok := s.chats[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(s.chats, id)
	return nil
}

func (s *InMemoryChatStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *InMemoryChatStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
