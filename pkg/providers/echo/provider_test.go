package echo

import (
	"context"
	"testing"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoStreamsWords(t *testing.T) {
	p := &Provider{}
	msgs := []*conversation.Message{
		conversation.NewUserMessage("first"),
		conversation.NewMessage(conversation.RoleAssistant, conversation.NewTextContent("ignored")),
		conversation.NewUserMessage("hello  big\nworld"),
	}

	var chunks []string
	msg, err := providers.Send(context.Background(), p, msgs, providers.Options{ThinkingEnabled: true}, func(c providers.Chunk) {
		if c.Type == providers.ChunkText {
			chunks = append(chunks, c.Content)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "hello big", "hello big world"}, chunks)
	assert.Equal(t, "hello big world", msg.Content.Text())

	th, ok := msg.Content.Thinking()
	require.True(t, ok)
	assert.Equal(t, "Echoing 3 words.", th.Thinking)
}

func TestEchoWithoutUserMessage(t *testing.T) {
	_, err := providers.Send(context.Background(), New(), nil, providers.Options{}, nil)
	assert.ErrorIs(t, err, providers.ErrProvider)
}

func TestEchoCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := providers.Send(ctx, New(), []*conversation.Message{conversation.NewUserMessage("a b c")}, providers.Options{}, nil)

	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, providers.KindCanceled, pe.Kind)
}
