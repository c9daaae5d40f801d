package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sqliteChatsSchemaV1 = `
CREATE TABLE IF NOT EXISTS chats (
    id TEXT PRIMARY KEY,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteChatStore keeps one JSON payload per chat row.
type SQLiteChatStore struct {
	db     *sql.DB
	closed bool
}

var _ ChatStore = (*SQLiteChatStore)(nil)

func NewSQLiteChatStore(dsn string) (*SQLiteChatStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite chat store: empty dsn")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	s := &SQLiteChatStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite chat store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteChatStore) migrate() error {
	if _, err := s.db.Exec(sqliteChatsSchemaV1); err != nil {
		return errors.Wrap(err, "could not create chats table")
	}
	return nil
}

func (s *SQLiteChatStore) Get(ctx context.Context, id conversation.ChatID) (*conversation.Document, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload_json FROM chats WHERE id = ?`, id.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, errors.Wrapf(err, "could not load chat %s", id)
	}

	doc, err := conversation.DecodeDocument([]byte(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode chat %s", id)
	}
	return doc, nil
}

func (s *SQLiteChatStore) List(ctx context.Context) ([]*conversation.Document, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, payload_json FROM chats ORDER BY id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "could not list chats")
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []*conversation.Document{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		doc, err := conversation.DecodeDocument([]byte(payload))
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("skipping unreadable chat row")
			continue
		}
		if doc.ID == "" {
			doc.ID = conversation.ChatID(id)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLiteChatStore) Put(ctx context.Context, chat *conversation.Chat) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := ValidateChatID(chat.ID); err != nil {
		return err
	}
	payload, err := conversation.EncodeChat(chat)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO chats (id, payload_json, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET payload_json = excluded.payload_json, updated_at_ms = excluded.updated_at_ms`,
		chat.ID.String(),
		string(payload),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return errors.Wrapf(err, "could not save chat %s", chat.ID)
	}
	return nil
}

func (s *SQLiteChatStore) Delete(ctx context.Context, id conversation.ChatID) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id.String())
	if err != nil {
		return errors.Wrapf(err, "could not delete chat %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

func (s *SQLiteChatStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteChatStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
