package conversation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NodeID identifies a message inside a chat tree.
//
// The empty NodeID is used for "no parent" and is serialized as JSON null.
// Numeric IDs found in older documents are decoded to their decimal form.
type NodeID string

func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

func (id NodeID) String() string {
	return string(id)
}

func (id NodeID) IsZero() bool {
	return id == ""
}

func (id NodeID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	s, err := decodeStringOrNumber(data)
	if err != nil {
		return err
	}
	*id = NodeID(s)
	return nil
}

// decodeStringOrNumber accepts a JSON string, number or null.
func decodeStringOrNumber(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a point in time serialized as an ISO-8601 string in UTC.
// Empty or unparseable values decode to the zero time.
type Timestamp struct {
	time.Time
}

// NewTimestamp keeps millisecond precision, which is what survives encoding.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func Now() Timestamp {
	return NewTimestamp(time.Now())
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(timestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// numbers, null and garbage all end up as the zero time
		t.Time = time.Time{}
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed.UTC().Truncate(time.Millisecond)
	return nil
}

// Message is a single turn in a chat tree.
type Message struct {
	ID        NodeID     `json:"id"`
	Role      Role       `json:"role"`
	Content   Content    `json:"content"`
	Timestamp Timestamp  `json:"timestamp"`
	IsError   bool       `json:"isError,omitempty"`
	Edited    bool       `json:"edited,omitempty"`
	EditedAt  *Timestamp `json:"editedAt,omitempty"`
	ParentID  NodeID     `json:"parentId"`
	Children  []NodeID   `json:"children"`
}

type MessageOption func(*Message)

func WithID(id NodeID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithParentID(parentID NodeID) MessageOption {
	return func(m *Message) {
		m.ParentID = parentID
	}
}

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Timestamp = NewTimestamp(t)
	}
}

func WithError() MessageOption {
	return func(m *Message) {
		m.IsError = true
	}
}

func NewMessage(role Role, content Content, options ...MessageOption) *Message {
	ret := &Message{
		ID:        NewNodeID(),
		Role:      role,
		Content:   content,
		Timestamp: Now(),
		Children:  []NodeID{},
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewUserMessage(text string, options ...MessageOption) *Message {
	return NewMessage(RoleUser, NewTextContent(text), options...)
}

// NewErrorMessage builds the assistant bubble shown in place of a failed reply.
func NewErrorMessage(err error, options ...MessageOption) *Message {
	options = append([]MessageOption{WithError()}, options...)
	return NewMessage(RoleAssistant, NewTextContent("Error: "+err.Error()), options...)
}

func (m *Message) IsRoot() bool {
	return m.ParentID.IsZero()
}

type messageAlias Message

// MarshalJSON makes sure children is always emitted as an array.
func (m Message) MarshalJSON() ([]byte, error) {
	a := messageAlias(m)
	if a.Children == nil {
		a.Children = []NodeID{}
	}
	if a.Content == nil {
		a.Content = Content{}
	}
	return json.Marshal(a)
}
