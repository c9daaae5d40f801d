package gemini

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	genai "google.golang.org/genai"
)

const (
	DefaultModel     = "gemini-3.1-pro-preview"
	DefaultMaxTokens = 65536
	ThinkingBudget   = 32768
)

var Models = []providers.Model{
	{ID: "gemini-3.1-pro-preview", Name: "Gemini 3.1 Pro Preview", MaxTokens: 65536, DefaultMaxTokens: DefaultMaxTokens},
	{ID: "gemini-3-pro-preview", Name: "Gemini 3 Pro Preview", MaxTokens: 65536, DefaultMaxTokens: DefaultMaxTokens},
	{ID: "gemini-2.5-flash-preview-05-20", Name: "Gemini 2.5 Flash Preview", MaxTokens: 65536, DefaultMaxTokens: DefaultMaxTokens},
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", MaxTokens: 8192, DefaultMaxTokens: 8192},
}

type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ providers.Provider = (*Provider)(nil)

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

func New(apiKey string, baseURL string, options ...Option) *Provider {
	p := &Provider{apiKey: apiKey, baseURL: baseURL}
	for _, o := range options {
		o(p)
	}
	return p
}

func (p *Provider) Name() providers.Name {
	return providers.Gemini
}

func (p *Provider) Models() []providers.Model {
	return Models
}

func (p *Provider) makeClient(ctx context.Context) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:      p.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL},
	}
	if p.httpClient != nil {
		cfg.HTTPClient = p.httpClient
	}
	return genai.NewClient(ctx, cfg)
}

func roleToGeminiRole(r conversation.Role) genai.Role {
	if r == conversation.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// makeContents converts the transcript, keeping only text blocks. Gemini joins
// multiple text blocks with a single newline.
func makeContents(messages []*conversation.Message) []*genai.Content {
	res := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var texts []string
		for _, b := range m.Content {
			if b.Type == conversation.BlockTypeText {
				texts = append(texts, b.Text)
			}
		}
		res = append(res, genai.NewContentFromText(strings.Join(texts, "\n"), roleToGeminiRole(m.Role)))
	}
	return res
}

// BuildConfig returns the model and generation config for a request.
func BuildConfig(opts providers.Options) (string, *genai.GenerateContentConfig) {
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

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     genai.Ptr[float32](1),
	}
	if opts.ThinkingEnabled {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr[int32](ThinkingBudget),
		}
	}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}
	return model, cfg
}

func (p *Provider) Stream(ctx context.Context, messages []*conversation.Message, opts providers.Options) (<-chan providers.Event, error) {
	client, err := p.makeClient(ctx)
	if err != nil {
		return nil, &providers.ProviderError{Provider: providers.Gemini, Kind: providers.KindConfig, Err: err}
	}
	contents := makeContents(messages)
	model, cfg := BuildConfig(opts)

	out := make(chan providers.Event)
	go func() {
		defer close(out)

		var text, thinking strings.Builder
		for chunk, err := range client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				providers.Emit(ctx, out, providers.NewErrorEvent(wrapError(err)))
				return
			}
			if chunk == nil || len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
				continue
			}
			for _, part := range chunk.Candidates[0].Content.Parts {
				if part == nil || part.Text == "" {
					continue
				}
				var ev providers.Event
				if part.Thought {
					thinking.WriteString(part.Text)
					ev = providers.NewPartialEvent(providers.ChunkThinking, thinking.String())
				} else {
					text.WriteString(part.Text)
					ev = providers.NewPartialEvent(providers.ChunkText, text.String())
				}
				if !providers.Emit(ctx, out, ev) {
					return
				}
			}
		}
		if ctx.Err() != nil {
			return
		}

		content := conversation.Content{}
		if thinking.Len() > 0 {
			content = append(content, conversation.NewThinkingBlock(thinking.String(), ""))
		}
		if text.Len() > 0 {
			content = append(content, conversation.NewTextBlock(text.String()))
		}
		log.Debug().Str("model", model).Int("text_len", text.Len()).Msg("gemini stream finished")
		providers.Emit(ctx, out, providers.NewFinalEvent(content))
	}()

	return out, nil
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.NewStatusError(providers.Gemini, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return providers.NewStatusError(providers.Gemini, apiErrPtr.Code, err)
	}
	return providers.WrapError(providers.Gemini, err)
}
