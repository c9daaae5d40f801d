package conversation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentAcceptsStringAndBlocks(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`"plain text"`), &c))
	assert.Equal(t, NewTextContent("plain text"), c)

	require.NoError(t, json.Unmarshal([]byte(`[{"type":"thinking","thinking":"let me see"},{"type":"text","text":"done"}]`), &c))
	require.Len(t, c, 2)
	thinking, ok := c.Thinking()
	require.True(t, ok)
	assert.Equal(t, "let me see", thinking.Thinking)
	assert.Empty(t, thinking.Signature)
	assert.Equal(t, "done", c.Text())

	assert.Error(t, json.Unmarshal([]byte(`{"type":"text"}`), &c))
}

func TestContentEncodesAsArray(t *testing.T) {
	b, err := json.Marshal(NewTextContent(""))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"text","text":""}]`, string(b))

	b, err = json.Marshal(Content{NewThinkingBlock("x", "sig"), NewTextBlock("y")})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"thinking","thinking":"x","signature":"sig"},{"type":"text","text":"y"}]`, string(b))
}

func TestContentKeepsUnknownBlocks(t *testing.T) {
	payload := `[{"type":"redacted_thinking","data":"opaque"},{"type":"text","text":"hi"}]`
	var c Content
	require.NoError(t, json.Unmarshal([]byte(payload), &c))

	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(b))
	assert.Equal(t, Content{NewTextBlock("hi")}, c.TextOnly())
}

func TestContentHelpers(t *testing.T) {
	c := Content{NewThinkingBlock("t", ""), NewTextBlock("first"), NewTextBlock("second")}

	first, ok := c.FirstText()
	require.True(t, ok)
	assert.Equal(t, "first", first)
	assert.Equal(t, "first\n\nsecond", c.Text())
	assert.False(t, c.IsBlank())
	assert.True(t, Content{NewTextBlock("  ")}.IsBlank())
	assert.True(t, Content{}.IsBlank())
}

func TestMessageJSONShape(t *testing.T) {
	msg := NewUserMessage("hi", WithID("m1"), WithTime(testTime))
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "m1",
		"role": "user",
		"content": [{"type":"text","text":"hi"}],
		"timestamp": "2025-03-14T09:26:53.000Z",
		"parentId": null,
		"children": []
	}`, string(b))

	var decoded Message
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, *msg, decoded)
}

func TestNodeIDAcceptsNumbers(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":12,"role":"user","content":"x","parentId":7,"children":[13]}`), &m))
	assert.Equal(t, NodeID("12"), m.ID)
	assert.Equal(t, NodeID("7"), m.ParentID)
	assert.Equal(t, []NodeID{"13"}, m.Children)
}

func TestTimestampIsLenient(t *testing.T) {
	var ts Timestamp
	for _, payload := range []string{`""`, `null`, `12345`, `"yesterday"`} {
		require.NoError(t, json.Unmarshal([]byte(payload), &ts), payload)
		assert.True(t, ts.IsZero(), payload)
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(assert.AnError, WithParentID("p"))
	assert.True(t, msg.IsError)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, NodeID("p"), msg.ParentID)
	assert.Equal(t, "Error: "+assert.AnError.Error(), msg.Content.Text())
}
