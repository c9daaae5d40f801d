// Package openaicompat streams replies from vendors that speak the OpenAI
// chat completions protocol. Reasoning deltas become thinking blocks.
package openaicompat

import (
	"context"
	"io"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const (
	DeepSeekBaseURL = "https://api.deepseek.com"
	KimiBaseURL     = "https://api.moonshot.ai/v1"
)

var DeepSeekModels = []providers.Model{
	{ID: "deepseek-chat", Name: "DeepSeek Chat (V3.2)", MaxTokens: 8192, DefaultMaxTokens: 4096},
	{ID: "deepseek-reasoner", Name: "DeepSeek Reasoner (V3.2 Thinking Mode)", MaxTokens: 64000, DefaultMaxTokens: 32000},
}

var KimiModels = []providers.Model{
	{ID: "kimi-k2.5", Name: "Kimi K2.5", MaxTokens: 32768, DefaultMaxTokens: 32768},
}

// Settings describes one vendor.
type Settings struct {
	Name         providers.Name
	BaseURL      string
	Models       []providers.Model
	DefaultModel string
	Temperature  float32
	// TopP is sent when positive.
	TopP float32
}

type Provider struct {
	settings Settings
	client   *go_openai.Client
}

var _ providers.Provider = (*Provider)(nil)

func New(apiKey string, settings Settings) *Provider {
	config := go_openai.DefaultConfig(apiKey)
	if settings.BaseURL != "" {
		config.BaseURL = strings.TrimSuffix(settings.BaseURL, "/")
	}
	return &Provider{
		settings: settings,
		client:   go_openai.NewClientWithConfig(config),
	}
}

func NewDeepSeek(apiKey string, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = DeepSeekBaseURL
	}
	return New(apiKey, Settings{
		Name:         providers.DeepSeek,
		BaseURL:      baseURL,
		Models:       DeepSeekModels,
		DefaultModel: "deepseek-chat",
		Temperature:  1,
	})
}

func NewKimi(apiKey string, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = KimiBaseURL
	}
	return New(apiKey, Settings{
		Name:         providers.Kimi,
		BaseURL:      baseURL,
		Models:       KimiModels,
		DefaultModel: "kimi-k2.5",
		Temperature:  1,
		TopP:         0.95,
	})
}

func (p *Provider) Name() providers.Name {
	return p.settings.Name
}

func (p *Provider) Models() []providers.Model {
	return p.settings.Models
}

// maxTokens resolves the token limit for model, clamped to what the model
// accepts.
func (p *Provider) maxTokens(model string, requested int) int {
	m, ok := providers.FindModel(p.settings.Models, model)
	if requested <= 0 {
		if ok && m.DefaultMaxTokens > 0 {
			return m.DefaultMaxTokens
		}
		return 4096
	}
	if ok && m.MaxTokens > 0 && requested > m.MaxTokens {
		return m.MaxTokens
	}
	return requested
}

// BuildRequest converts a transcript into a streaming chat completion
// request. Text blocks of a message are joined with a newline.
func (p *Provider) BuildRequest(messages []*conversation.Message, opts providers.Options) go_openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = p.settings.DefaultModel
	}

	msgs := make([]go_openai.ChatCompletionMessage, 0, len(messages)+1)
	if opts.SystemPrompt != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	for _, m := range messages {
		var texts []string
		for _, b := range m.Content {
			if b.Type == conversation.BlockTypeText {
				texts = append(texts, b.Text)
			}
		}
		role := go_openai.ChatMessageRoleUser
		if m.Role == conversation.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    role,
			Content: strings.Join(texts, "\n"),
		})
	}

	return go_openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   p.maxTokens(model, opts.MaxTokens),
		Temperature: p.settings.Temperature,
		TopP:        p.settings.TopP,
		Stream:      true,
	}
}

func (p *Provider) Stream(ctx context.Context, messages []*conversation.Message, opts providers.Options) (<-chan providers.Event, error) {
	req := p.BuildRequest(messages, opts)

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, p.wrapError(err)
	}

	out := make(chan providers.Event)
	go func() {
		defer close(out)
		defer func() {
			_ = stream.Close()
		}()

		var text, thinking strings.Builder
	loop:
		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				providers.Emit(ctx, out, providers.NewErrorEvent(p.wrapError(err)))
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			choice := response.Choices[0]
			delta := choice.Delta

			if delta.ReasoningContent != "" {
				thinking.WriteString(delta.ReasoningContent)
				if !providers.Emit(ctx, out, providers.NewPartialEvent(providers.ChunkThinking, thinking.String())) {
					return
				}
			}
			if delta.Content != "" {
				text.WriteString(delta.Content)
				if !providers.Emit(ctx, out, providers.NewPartialEvent(providers.ChunkText, text.String())) {
					return
				}
			}
			if choice.FinishReason != "" {
				log.Debug().
					Str("provider", p.settings.Name.String()).
					Str("finish_reason", string(choice.FinishReason)).
					Msg("chat completion finished")
				break loop
			}
		}

		content := conversation.Content{}
		if thinking.Len() > 0 {
			content = append(content, conversation.NewThinkingBlock(thinking.String(), ""))
		}
		if text.Len() > 0 {
			content = append(content, conversation.NewTextBlock(text.String()))
		}
		providers.Emit(ctx, out, providers.NewFinalEvent(content))
	}()

	return out, nil
}

func (p *Provider) wrapError(err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return providers.NewStatusError(p.settings.Name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return providers.NewStatusError(p.settings.Name, reqErr.HTTPStatusCode, err)
	}
	return providers.WrapError(p.settings.Name, err)
}
