package chat

import (
	"errors"
	"fmt"

	"github.com/go-go-golems/forkchat/pkg/conversation"
)

var (
	// ErrInferenceInProgress is returned when a chat already has a reply
	// being generated.
	ErrInferenceInProgress = errors.New("an inference is already running for this chat")
	ErrNotAssistantMessage = errors.New("only assistant replies can be regenerated")
)

type InferenceInProgressError struct {
	ChatID conversation.ChatID
}

func (e *InferenceInProgressError) Error() string {
	return fmt.Sprintf("chat %s: %s", e.ChatID, ErrInferenceInProgress)
}

func (e *InferenceInProgressError) Is(target error) bool { return target == ErrInferenceInProgress }
