package store

import (
	"bytes"
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	chatKeyPrefix = []byte("chat/")
	// '0' sorts right after '/', which bounds the prefix scan.
	chatKeyUpperBound = []byte("chat0")
)

func chatKey(id conversation.ChatID) []byte {
	return append(bytes.Clone(chatKeyPrefix), id.String()...)
}

// PebbleChatStore keeps chats in a Pebble key-value database under chat/<id>.
type PebbleChatStore struct {
	db *pebble.DB
}

var _ ChatStore = (*PebbleChatStore)(nil)

func NewPebbleChatStore(path string) (*PebbleChatStore, error) {
	if path == "" {
		return nil, errors.New("pebble chat store: path is required")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open pebble database at %s", path)
	}
	return &PebbleChatStore{db: db}, nil
}

func (s *PebbleChatStore) Get(_ context.Context, id conversation.ChatID) (*conversation.Document, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	value, closer, err := s.db.Get(chatKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, errors.Wrapf(err, "could not load chat %s", id)
	}
	payload := bytes.Clone(value)
	_ = closer.Close()

	doc, err := conversation.DecodeDocument(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode chat %s", id)
	}
	return doc, nil
}

func (s *PebbleChatStore) List(_ context.Context) ([]*conversation.Document, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: chatKeyPrefix,
		UpperBound: chatKeyUpperBound,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not list chats")
	}
	defer func() {
		_ = iter.Close()
	}()

	out := []*conversation.Document{}
	for iter.First(); iter.Valid(); iter.Next() {
		doc, err := conversation.DecodeDocument(bytes.Clone(iter.Value()))
		if err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("skipping unreadable chat entry")
			continue
		}
		if doc.ID == "" {
			doc.ID = conversation.ChatID(bytes.TrimPrefix(iter.Key(), chatKeyPrefix))
		}
		out = append(out, doc)
	}
	return out, iter.Error()
}

func (s *PebbleChatStore) Put(_ context.Context, chat *conversation.Chat) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if err := ValidateChatID(chat.ID); err != nil {
		return err
	}
	payload, err := conversation.EncodeChat(chat)
	if err != nil {
		return err
	}
	if err := s.db.Set(chatKey(chat.ID), payload, pebble.Sync); err != nil {
		return errors.Wrapf(err, "could not save chat %s", chat.ID)
	}
	return nil
}

func (s *PebbleChatStore) Delete(_ context.Context, id conversation.ChatID) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	key := chatKey(id)
	_, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return &NotFoundError{ID: id}
		}
		return errors.Wrapf(err, "could not load chat %s", id)
	}
	_ = closer.Close()

	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return errors.Wrapf(err, "could not delete chat %s", id)
	}
	return nil
}

func (s *PebbleChatStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
