package store

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendPebble Backend = "pebble"
)

// Open creates the chat store for the given backend. path is a directory for
// the file and pebble backends and a database file for sqlite.
func Open(backend Backend, path string) (ChatStore, error) {
	switch backend {
	case BackendMemory:
		return NewInMemoryChatStore(), nil
	case BackendFile, "":
		return NewFileChatStore(path)
	case BackendSQLite:
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "could not create %s", dir)
			}
		}
		dsn, err := SQLiteDSNForFile(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteChatStore(dsn)
	case BackendPebble:
		return NewPebbleChatStore(path)
	default:
		return nil, errors.Errorf("unknown storage backend %q", backend)
	}
}
