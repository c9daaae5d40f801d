package events

import (
	"encoding/json"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/pkg/errors"
)

type EventType string

const (
	// EventTypeStart is published when an inference begins.
	EventTypeStart EventType = "start"
	// EventTypePartial carries the accumulated draft of the reply.
	EventTypePartial EventType = "partial"
	// EventTypeFinal carries the persisted reply.
	EventTypeFinal EventType = "final"
	EventTypeError EventType = "error"
	// EventTypeChatUpdated signals a metadata change such as a new title.
	EventTypeChatUpdated EventType = "chat-updated"
)

// ChatEvent is published on a chat's topic. Drafts are never persisted; only
// final replies end up in the tree.
type ChatEvent struct {
	Type          EventType             `json:"type"`
	ChatID        conversation.ChatID   `json:"chatId"`
	ParentID      conversation.NodeID   `json:"parentId,omitempty"`
	Chunk         *providers.Chunk      `json:"chunk,omitempty"`
	Message       *conversation.Message `json:"message,omitempty"`
	Title         string                `json:"title,omitempty"`
	Emoji         string                `json:"emoji,omitempty"`
	Error         string                `json:"error,omitempty"`
	ErrorKind     providers.ErrorKind   `json:"errorKind,omitempty"`
	Time          time.Time             `json:"time"`
	Sequence      uint64                `json:"seq"`
	CorrelationID string                `json:"correlationId,omitempty"`
}

func NewStartEvent(chatID conversation.ChatID, parentID conversation.NodeID) *ChatEvent {
	return &ChatEvent{Type: EventTypeStart, ChatID: chatID, ParentID: parentID, Time: time.Now()}
}

func NewPartialEvent(chatID conversation.ChatID, parentID conversation.NodeID, chunk providers.Chunk) *ChatEvent {
	return &ChatEvent{Type: EventTypePartial, ChatID: chatID, ParentID: parentID, Chunk: &chunk, Time: time.Now()}
}

func NewFinalEvent(chatID conversation.ChatID, msg *conversation.Message) *ChatEvent {
	return &ChatEvent{Type: EventTypeFinal, ChatID: chatID, ParentID: msg.ParentID, Message: msg, Time: time.Now()}
}

func NewErrorEvent(chatID conversation.ChatID, parentID conversation.NodeID, err error) *ChatEvent {
	ev := &ChatEvent{Type: EventTypeError, ChatID: chatID, ParentID: parentID, Time: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		var pe *providers.ProviderError
		if errors.As(err, &pe) {
			ev.ErrorKind = pe.Kind
		}
	}
	return ev
}

func NewChatUpdatedEvent(chat *conversation.Chat) *ChatEvent {
	return &ChatEvent{
		Type:   EventTypeChatUpdated,
		ChatID: chat.ID,
		Title:  chat.Title,
		Emoji:  chat.Emoji,
		Time:   time.Now(),
	}
}

func NewEventFromJSON(b []byte) (*ChatEvent, error) {
	var ev ChatEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, errors.Wrap(err, "could not decode chat event")
	}
	if ev.Type == "" {
		return nil, errors.New("chat event without type")
	}
	return &ev, nil
}
