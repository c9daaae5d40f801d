package echo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/pkg/errors"
)

var Models = []providers.Model{
	{ID: "echo", Name: "Echo"},
}

// Provider replies with the last user message, one word at a time. It needs
// no credentials and is used for offline runs and tests.
type Provider struct {
	TimePerWord time.Duration
}

var _ providers.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{TimePerWord: 20 * time.Millisecond}
}

func (p *Provider) Name() providers.Name {
	return providers.Echo
}

func (p *Provider) Models() []providers.Model {
	return Models
}

func (p *Provider) Stream(ctx context.Context, messages []*conversation.Message, opts providers.Options) (<-chan providers.Event, error) {
	var last *conversation.Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			last = messages[i]
			break
		}
	}
	if last == nil {
		return nil, &providers.ProviderError{
			Provider: providers.Echo,
			Kind:     providers.KindAPI,
			Err:      errors.New("no user message to echo"),
		}
	}
	words := strings.Fields(last.Content.Text())

	out := make(chan providers.Event)
	go func() {
		defer close(out)

		content := conversation.Content{}
		if opts.ThinkingEnabled {
			thinking := fmt.Sprintf("Echoing %d words.", len(words))
			if !providers.Emit(ctx, out, providers.NewPartialEvent(providers.ChunkThinking, thinking)) {
				return
			}
			content = append(content, conversation.NewThinkingBlock(thinking, ""))
		}

		var sb strings.Builder
		for i, w := range words {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.TimePerWord):
			}
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(w)
			if !providers.Emit(ctx, out, providers.NewPartialEvent(providers.ChunkText, sb.String())) {
				return
			}
		}

		content = append(content, conversation.NewTextBlock(sb.String()))
		providers.Emit(ctx, out, providers.NewFinalEvent(content))
	}()

	return out, nil
}
