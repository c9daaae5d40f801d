package store

import (
	"context"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

// ChatReader loads chat documents. Documents come back as they were stored,
// possibly in the legacy linear form; callers run them through
// conversation.Migrate.
type ChatReader interface {
	Get(ctx context.Context, id conversation.ChatID) (*conversation.Document, error)
	List(ctx context.Context) ([]*conversation.Document, error)
}

// ChatWriter replaces or removes whole chat documents.
type ChatWriter interface {
	Put(ctx context.Context, chat *conversation.Chat) error
	Delete(ctx context.Context, id conversation.ChatID) error
}

type ChatStore interface {
	ChatReader
	ChatWriter
	Close() error
}
