package api

import (
	"strings"

	"github.com/rs/zerolog"
)

type ContentType string

const (
	ContentTypeText             ContentType = "text"
	ContentTypeThinking         ContentType = "thinking"
	ContentTypeRedactedThinking ContentType = "redacted_thinking"
)

type ContentBlock struct {
	Type      ContentType `json:"type"`
	Text      string      `json:"text,omitempty"`
	Thinking  string      `json:"thinking,omitempty"`
	Signature string      `json:"signature,omitempty"`
	Data      string      `json:"data,omitempty"`
}

func NewTextContent(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

func NewThinkingContent(thinking, signature string) ContentBlock {
	return ContentBlock{Type: ContentTypeThinking, Thinking: thinking, Signature: signature}
}

func (cb ContentBlock) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(cb.Type))
	if cb.Text != "" {
		e.Str("text", cb.Text)
	}
	if cb.Thinking != "" {
		e.Int("thinking_len", len(cb.Thinking))
	}
	if cb.Signature != "" {
		e.Bool("signed", true)
	}
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type MessageRequest struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Thinking    *ThinkingConfig `json:"thinking,omitempty"`
	Stream      bool            `json:"stream"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) MarshalZerologObject(e *zerolog.Event) {
	e.Int("input_tokens", u.InputTokens)
	e.Int("output_tokens", u.OutputTokens)
}

type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

func (m MessageResponse) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", m.ID)
	e.Str("model", m.Model)
	e.Str("role", m.Role)
	if m.StopReason != "" {
		e.Str("stop_reason", m.StopReason)
	}
	e.Object("usage", m.Usage)
}

// FullText concatenates the text blocks of the response.
func (m *MessageResponse) FullText() string {
	if m == nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range m.Content {
		if c.Type == ContentTypeText {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}
