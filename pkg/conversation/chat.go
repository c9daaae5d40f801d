package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

const (
	DefaultProvider    = "Anthropic"
	DefaultModel       = "claude-sonnet-4-5-20250929"
	DefaultTitle       = "New Chat"
	DefaultEmoji       = "💬"
	DefaultLastMessage = "Start chatting..."
	NoResponseSummary  = "No response"
)

// ChatID identifies a chat document. Older documents used numeric IDs, which
// are decoded to their decimal form.
type ChatID string

func NewChatID() ChatID {
	return ChatID(uuid.NewString())
}

func (id ChatID) String() string {
	return string(id)
}

func (id *ChatID) UnmarshalJSON(data []byte) error {
	s, err := decodeStringOrNumber(data)
	if err != nil {
		return err
	}
	*id = ChatID(s)
	return nil
}

// Chat is a chat document as it is persisted: metadata plus the message tree.
type Chat struct {
	ID           ChatID    `json:"id"`
	Title        string    `json:"title"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Emoji        string    `json:"emoji"`
	LastMessage  string    `json:"lastMessage"`
	Timestamp    Timestamp `json:"timestamp"`
	IsPinned     bool      `json:"isPinned"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`

	Tree
}

type ChatOption func(*Chat)

func WithTitle(title string) ChatOption {
	return func(c *Chat) {
		c.Title = title
	}
}

func WithProvider(provider, model string) ChatOption {
	return func(c *Chat) {
		if provider != "" {
			c.Provider = provider
		}
		if model != "" {
			c.Model = model
		}
	}
}

func WithSystemPrompt(prompt string) ChatOption {
	return func(c *Chat) {
		c.SystemPrompt = prompt
	}
}

func WithEmoji(emoji string) ChatOption {
	return func(c *Chat) {
		if emoji != "" {
			c.Emoji = emoji
		}
	}
}

func WithChatTime(ts Timestamp) ChatOption {
	return func(c *Chat) {
		c.Timestamp = ts
	}
}

func NewChat(id ChatID, options ...ChatOption) *Chat {
	ret := &Chat{
		ID:          id,
		Title:       DefaultTitle,
		Provider:    DefaultProvider,
		Model:       DefaultModel,
		Emoji:       DefaultEmoji,
		LastMessage: DefaultLastMessage,
		Timestamp:   Now(),
		Tree:        *NewTree(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// NumberedTitle is the title given to the n-th new chat.
func NumberedTitle(n int) string {
	return fmt.Sprintf("%s %d", DefaultTitle, n)
}

func (c *Chat) Clone() *Chat {
	ret := clone.Clone(c).(*Chat)
	ret.Tree.normalize()
	return ret
}

// WithTree returns a copy of the chat carrying tree t.
func (c *Chat) WithTree(t *Tree) *Chat {
	ret := *c
	ret.Tree = *t
	return &ret
}

// Document wraps the chat so it can go through Migrate again.
func (c *Chat) Document() *Document {
	return &Document{Chat: *c.Clone()}
}

// Document is a chat document as read from storage. It may still be in the
// legacy linear form, in which case MessagesMap is nil and Messages holds the
// raw legacy list.
type Document struct {
	Chat
	Messages json.RawMessage `json:"messages,omitempty"`
}

func (d *Document) IsLegacy() bool {
	return d.MessagesMap == nil
}

func EncodeChat(c *Chat) ([]byte, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode chat %s", c.ID)
	}
	return b, nil
}
