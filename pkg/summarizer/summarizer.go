// Package summarizer derives a chat title and emoji from the first message
// of a conversation. Summaries are best effort: failures fall back to
// defaults and are only logged.
package summarizer

import (
	"context"
	"strings"
	"text/template"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/providers/claude"
	"github.com/go-go-golems/forkchat/pkg/providers/claude/api"
	"github.com/go-go-golems/glazed/pkg/helpers/templating"
	"github.com/pkg/errors"
	"github.com/rivo/uniseg"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	MaxTitleLength = 50
	titleMaxTokens = 100
	emojiMaxTokens = 50
)

const titlePrompt = `Based on this message, generate a short, descriptive title (3-6 words max) for the conversation. Respond with ONLY the title, no quotes or explanations.

Message: "{{ .Message }}"`

const emojiPrompt = `Based on this message, respond with ONLY a single emoji that best represents the topic or mood. No explanations, just the emoji character.

Message: "{{ .Message }}"`

// Summary is the outcome of summarizing a first message. An empty Title
// means the current title should be kept.
type Summary struct {
	Title string
	Emoji string
}

type Summarizer interface {
	Summarize(ctx context.Context, message string) Summary
	// Emoji picks an emoji for text alone.
	Emoji(ctx context.Context, text string) string
}

// Static never calls a model.
type Static struct{}

func (Static) Summarize(context.Context, string) Summary {
	return Summary{Emoji: conversation.DefaultEmoji}
}

func (Static) Emoji(context.Context, string) string {
	return conversation.DefaultEmoji
}

// Completer sends a single non-streaming request.
type Completer interface {
	Complete(ctx context.Context, req *api.MessageRequest) (string, error)
}

var _ Completer = (*claude.Provider)(nil)

// Claude asks a Claude model for the title and the emoji in parallel.
type Claude struct {
	completer Completer
	model     string
	title     *template.Template
	emoji     *template.Template
}

var _ Summarizer = (*Claude)(nil)

func NewClaude(completer Completer, model string) (*Claude, error) {
	if model == "" {
		model = claude.DefaultModel
	}
	titleTemplate, err := templating.CreateTemplate("title").Parse(titlePrompt)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse title prompt")
	}
	emojiTemplate, err := templating.CreateTemplate("emoji").Parse(emojiPrompt)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse emoji prompt")
	}
	return &Claude{
		completer: completer,
		model:     model,
		title:     titleTemplate,
		emoji:     emojiTemplate,
	}, nil
}

func (c *Claude) ask(ctx context.Context, tmpl *template.Template, message string, maxTokens int) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, map[string]string{"Message": message}); err != nil {
		return "", errors.Wrap(err, "could not render prompt")
	}
	temperature := 1.0
	return c.completer.Complete(ctx, &api.MessageRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []api.Message{{
			Role:    "user",
			Content: []api.ContentBlock{api.NewTextContent(sb.String())},
		}},
	})
}

func (c *Claude) Summarize(ctx context.Context, message string) Summary {
	ret := Summary{Emoji: conversation.DefaultEmoji}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		text, err := c.ask(ctx, c.title, message, titleMaxTokens)
		if err != nil {
			log.Warn().Err(err).Msg("could not generate chat title")
			return nil
		}
		ret.Title = CleanTitle(text)
		return nil
	})
	eg.Go(func() error {
		text, err := c.ask(ctx, c.emoji, message, emojiMaxTokens)
		if err != nil {
			log.Warn().Err(err).Msg("could not generate chat emoji")
			return nil
		}
		ret.Emoji = FirstEmoji(text)
		return nil
	})
	_ = eg.Wait()

	return ret
}

func (c *Claude) Emoji(ctx context.Context, text string) string {
	reply, err := c.ask(ctx, c.emoji, text, emojiMaxTokens)
	if err != nil {
		log.Warn().Err(err).Msg("could not generate emoji")
		return conversation.DefaultEmoji
	}
	return FirstEmoji(reply)
}

// CleanTitle trims a generated title, strips one pair of surrounding quotes
// and caps it at MaxTitleLength characters.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimPrefix(s, `'`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimSuffix(s, `'`)
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > MaxTitleLength {
		return string(runes[:MaxTitleLength-3]) + "..."
	}
	return s
}

// FirstEmoji returns the first emoji grapheme cluster of s, or the default
// chat emoji.
func FirstEmoji(s string) string {
	g := uniseg.NewGraphemes(strings.TrimSpace(s))
	for g.Next() {
		runes := g.Runes()
		if len(runes) > 0 && isPictographic(runes[0]) {
			return g.Str()
		}
	}
	return conversation.DefaultEmoji
}

func isPictographic(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2190 && r <= 0x2BFF:
		return true
	case r == 0x00A9, r == 0x00AE, r == 0x203C, r == 0x2049, r == 0x2122, r == 0x2139:
		return true
	case r == 0x3030, r == 0x303D, r == 0x3297, r == 0x3299:
		return true
	}
	return false
}
