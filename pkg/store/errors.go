package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrInvalidChatID = errors.New("invalid chat id")
	ErrStoreClosed   = errors.New("store is closed")
)

// NotFoundError reports a chat ID that isn't in the store.
type NotFoundError struct {
	ID conversation.ChatID
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ErrChatNotFound.Error()
	}
	return fmt.Sprintf("%s: %q", ErrChatNotFound, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrChatNotFound }

type InvalidChatIDError struct {
	ID     conversation.ChatID
	Reason string
}

func (e *InvalidChatIDError) Error() string {
	if e == nil {
		return ErrInvalidChatID.Error()
	}
	return fmt.Sprintf("%s %q: %s", ErrInvalidChatID, e.ID, e.Reason)
}

func (e *InvalidChatIDError) Is(target error) bool { return target == ErrInvalidChatID }

// ValidateChatID rejects IDs that can't safely be used as a file name or key.
func ValidateChatID(id conversation.ChatID) error {
	s := id.String()
	switch {
	case s == "":
		return &InvalidChatIDError{ID: id, Reason: "empty"}
	case len(s) > 200:
		return &InvalidChatIDError{ID: id, Reason: "too long"}
	case s == "." || s == "..":
		return &InvalidChatIDError{ID: id, Reason: "reserved name"}
	case strings.ContainsAny(s, "/\\\x00"):
		return &InvalidChatIDError{ID: id, Reason: "contains a path separator"}
	}
	return nil
}
