package claude

import (
	"context"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/go-go-golems/forkchat/pkg/providers/claude/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 20000
	ThinkingBudget   = 16000
)

var Models = []providers.Model{
	{ID: "claude-sonnet-4-5-20250929", Name: "Claude Sonnet 4.5", MaxTokens: 64000, DefaultMaxTokens: DefaultMaxTokens},
	{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", MaxTokens: 64000, DefaultMaxTokens: DefaultMaxTokens},
	{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", MaxTokens: 32000, DefaultMaxTokens: DefaultMaxTokens},
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", MaxTokens: 8192, DefaultMaxTokens: 8192},
}

type Provider struct {
	client *api.Client
}

var _ providers.Provider = (*Provider)(nil)

func New(apiKey string, baseURL string, options ...api.ClientOption) *Provider {
	return &Provider{client: api.NewClient(apiKey, baseURL, options...)}
}

func (p *Provider) Name() providers.Name {
	return providers.Anthropic
}

func (p *Provider) Models() []providers.Model {
	return Models
}

// BuildRequest turns a transcript into a Messages API request.
//
// Only text blocks are sent, except that with thinking enabled the signed
// thinking blocks of earlier replies are passed back as the API expects.
// Messages without any text are left out.
func BuildRequest(messages []*conversation.Message, opts providers.Options) *api.MessageRequest {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
		if m, ok := providers.FindModel(Models, model); ok && m.DefaultMaxTokens > 0 {
			maxTokens = m.DefaultMaxTokens
		}
	}

	req := &api.MessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    opts.SystemPrompt,
		Messages:  make([]api.Message, 0, len(messages)),
	}
	if opts.ThinkingEnabled && maxTokens > ThinkingBudget {
		temperature := 1.0
		req.Temperature = &temperature
		req.Thinking = &api.ThinkingConfig{Type: "enabled", BudgetTokens: ThinkingBudget}
	}

	for _, m := range messages {
		var blocks []api.ContentBlock
		if req.Thinking != nil && m.Role == conversation.RoleAssistant {
			if th, ok := m.Content.Thinking(); ok && th.Signature != "" {
				blocks = append(blocks, api.NewThinkingContent(th.Thinking, th.Signature))
			}
		}
		text := providers.HistoryText(m)
		if text == "" {
			log.Debug().Str("id", m.ID.String()).Msg("skipping message without text")
			continue
		}
		blocks = append(blocks, api.NewTextContent(text))
		req.Messages = append(req.Messages, api.Message{Role: string(m.Role), Content: blocks})
	}

	return req
}

func (p *Provider) Stream(ctx context.Context, messages []*conversation.Message, opts providers.Options) (<-chan providers.Event, error) {
	req := BuildRequest(messages, opts)

	ctx, cancel := context.WithCancel(ctx)
	events, err := p.client.StreamMessage(ctx, req)
	if err != nil {
		cancel()
		return nil, wrapError(err)
	}

	out := make(chan providers.Event)
	go func() {
		defer close(out)
		defer cancel()

		merger := NewContentBlockMerger()
		for event := range events {
			partials, done, err := merger.Add(event)
			if err != nil {
				providers.Emit(ctx, out, providers.NewErrorEvent(wrapError(err)))
				return
			}
			for _, pe := range partials {
				if !providers.Emit(ctx, out, pe) {
					return
				}
			}
			if done {
				if resp := merger.Response(); resp != nil {
					log.Debug().Object("response", resp).Msg("claude stream finished")
				}
				providers.Emit(ctx, out, providers.NewFinalEvent(merger.Content()))
				return
			}
		}
		if ctx.Err() == nil {
			providers.Emit(ctx, out, providers.NewErrorEvent(&providers.ProviderError{
				Provider: providers.Anthropic,
				Kind:     providers.KindStream,
				Err:      errors.New("stream ended before message_stop"),
			}))
		}
	}()

	return out, nil
}

// Complete sends a non-streaming request and returns the text of the reply.
func (p *Provider) Complete(ctx context.Context, req *api.MessageRequest) (string, error) {
	resp, err := p.client.SendMessage(ctx, req)
	if err != nil {
		return "", wrapError(err)
	}
	return resp.FullText(), nil
}

func wrapError(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode != 0 {
			return providers.NewStatusError(providers.Anthropic, apiErr.StatusCode, err)
		}
		kind := providers.KindStream
		switch apiErr.Type {
		case "authentication_error", "permission_error":
			kind = providers.KindAuth
		case "rate_limit_error", "overloaded_error":
			kind = providers.KindRateLimit
		}
		return &providers.ProviderError{Provider: providers.Anthropic, Kind: kind, Err: err}
	}
	return providers.WrapError(providers.Anthropic, err)
}
