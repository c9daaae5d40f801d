package conversation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

type BlockType string

const (
	BlockTypeText     BlockType = "text"
	BlockTypeThinking BlockType = "thinking"
)

// ContentBlock is one typed piece of a message body.
//
// Text blocks use Text, thinking blocks use Thinking and optionally Signature,
// which some providers need echoed back on the next turn. Blocks of any other
// type are carried through untouched in Raw.
type ContentBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

func NewThinkingBlock(thinking string, signature string) ContentBlock {
	return ContentBlock{Type: BlockTypeThinking, Thinking: thinking, Signature: signature}
}

type contentBlockAlias ContentBlock

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	switch b.Type {
	case BlockTypeText:
		// text is always present, even when empty
		return json.Marshal(struct {
			Type BlockType `json:"type"`
			Text string    `json:"text"`
		}{b.Type, b.Text})
	case BlockTypeThinking:
		return json.Marshal(struct {
			Type      BlockType `json:"type"`
			Thinking  string    `json:"thinking"`
			Signature string    `json:"signature,omitempty"`
		}{b.Type, b.Thinking, b.Signature})
	}
	return json.Marshal(contentBlockAlias(b))
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var a contentBlockAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = ContentBlock(a)
	if b.Type != BlockTypeText && b.Type != BlockTypeThinking {
		b.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// Content is the normalized body of a message: an ordered list of blocks.
//
// On the wire it may also be a bare string, which decodes to a single text
// block. It always encodes as an array.
type Content []ContentBlock

func NewTextContent(text string) Content {
	return Content{NewTextBlock(text)}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = NewTextContent(s)
		return nil
	}
	if data[0] != '[' {
		return errors.Errorf("content must be a string or an array, got %q", string(data[:1]))
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return errors.Wrap(err, "could not decode content blocks")
	}
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	*c = blocks
	return nil
}

// Text concatenates all text blocks, separated by blank lines.
func (c Content) Text() string {
	parts := make([]string, 0, len(c))
	for _, b := range c {
		if b.Type == BlockTypeText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FirstText returns the first text block, if any.
func (c Content) FirstText() (string, bool) {
	for _, b := range c {
		if b.Type == BlockTypeText {
			return b.Text, true
		}
	}
	return "", false
}

func (c Content) Thinking() (ContentBlock, bool) {
	for _, b := range c {
		if b.Type == BlockTypeThinking {
			return b, true
		}
	}
	return ContentBlock{}, false
}

// TextOnly drops everything that isn't a text block.
func (c Content) TextOnly() Content {
	ret := Content{}
	for _, b := range c {
		if b.Type == BlockTypeText {
			ret = append(ret, b)
		}
	}
	return ret
}

// IsBlank reports whether the content has no non-whitespace text or thinking.
func (c Content) IsBlank() bool {
	for _, b := range c {
		switch b.Type {
		case BlockTypeText:
			if strings.TrimSpace(b.Text) != "" {
				return false
			}
		case BlockTypeThinking:
			if strings.TrimSpace(b.Thinking) != "" {
				return false
			}
		}
	}
	return true
}
