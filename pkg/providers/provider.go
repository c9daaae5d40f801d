package providers

import (
	"context"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
)

// Name identifies a provider backend. Chat documents store the display name
// ("Anthropic"); ParseName accepts either form.
type Name string

const (
	Anthropic Name = "anthropic"
	Gemini    Name = "gemini"
	DeepSeek  Name = "deepseek"
	Kimi      Name = "kimi"
	Echo      Name = "echo"
)

var displayNames = map[Name]string{
	Anthropic: "Anthropic",
	Gemini:    "Gemini",
	DeepSeek:  "DeepSeek",
	Kimi:      "Kimi",
	Echo:      "Echo",
}

// Names lists all providers in display order.
func Names() []Name {
	return []Name{Anthropic, Gemini, DeepSeek, Kimi, Echo}
}

func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := displayNames[n]; !ok {
		return "", errors.Errorf("unknown provider %q", s)
	}
	return n, nil
}

func (n Name) DisplayName() string {
	if d, ok := displayNames[n]; ok {
		return d
	}
	return string(n)
}

func (n Name) String() string {
	return string(n)
}

type Model struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	MaxTokens        int    `json:"maxTokens,omitempty" yaml:"max-tokens,omitempty"`
	DefaultMaxTokens int    `json:"defaultMaxTokens,omitempty" yaml:"default-max-tokens,omitempty"`
}

// FindModel returns the model with the given ID.
func FindModel(models []Model, id string) (Model, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

type Options struct {
	Model           string
	SystemPrompt    string
	ThinkingEnabled bool
	// MaxTokens overrides the model default when positive.
	MaxTokens int
}

type ChunkType string

const (
	ChunkThinking ChunkType = "thinking"
	ChunkText     ChunkType = "text"
)

// Chunk is an incremental update of the reply being generated. Content holds
// everything received so far for that kind of block, not just the delta.
type Chunk struct {
	Type      ChunkType `json:"type"`
	Content   string    `json:"content"`
	IsPartial bool      `json:"isPartial"`
}

type EventType string

const (
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventError   EventType = "error"
)

// Event is one element of a reply stream. A stream carries any number of
// partial events followed by exactly one final or error event, after which
// the channel is closed.
type Event struct {
	Type    EventType
	Chunk   Chunk
	Content conversation.Content
	Err     error
}

func NewPartialEvent(t ChunkType, content string) Event {
	return Event{Type: EventPartial, Chunk: Chunk{Type: t, Content: content, IsPartial: true}}
}

func NewFinalEvent(content conversation.Content) Event {
	return Event{Type: EventFinal, Content: content}
}

func NewErrorEvent(err error) Event {
	return Event{Type: EventError, Err: err}
}

// Provider is a model backend able to stream a reply to a linear transcript.
type Provider interface {
	Name() Name
	Models() []Model
	Stream(ctx context.Context, messages []*conversation.Message, opts Options) (<-chan Event, error)
}

// Emit sends ev on ch unless ctx is done first.
func Emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

type ChunkHandler func(Chunk)

// Send streams a reply from p and waits for it to complete. Partial updates
// go to onChunk, which may be nil. The returned message is an assistant
// message without ID or parent; any failure is returned as *ProviderError.
func Send(
	ctx context.Context,
	p Provider,
	messages []*conversation.Message,
	opts Options,
	onChunk ChunkHandler,
) (*conversation.Message, error) {
	events, err := p.Stream(ctx, messages, opts)
	if err != nil {
		return nil, WrapError(p.Name(), err)
	}

	for ev := range events {
		switch ev.Type {
		case EventPartial:
			if onChunk != nil {
				onChunk(ev.Chunk)
			}
		case EventFinal:
			content := ev.Content
			if content == nil {
				content = conversation.Content{}
			}
			return conversation.NewMessage(conversation.RoleAssistant, content, conversation.WithID("")), nil
		case EventError:
			if ev.Err == nil {
				return nil, &ProviderError{
					Provider: p.Name(),
					Kind:     KindStream,
					Err:      errors.New("provider reported an error without details"),
				}
			}
			return nil, WrapError(p.Name(), ev.Err)
		}
	}

	if ctx.Err() != nil {
		return nil, WrapError(p.Name(), ctx.Err())
	}
	return nil, &ProviderError{
		Provider: p.Name(),
		Kind:     KindStream,
		Err:      errors.New("stream ended without a final message"),
	}
}

// HistoryText returns the text a message contributes to a provider request.
// Only text blocks are sent back to models.
func HistoryText(m *conversation.Message) string {
	return m.Content.Text()
}
