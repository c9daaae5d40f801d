package prompts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPromptNotFound = errors.New("prompt not found")
	ErrInvalidPrompt  = errors.New("invalid prompt")
)

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrPromptNotFound, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrPromptNotFound }

// Prompt is a reusable chat preset: where a new chat goes and how it starts.
type Prompt struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	Icon         string    `json:"icon" yaml:"icon"`
	Provider     string    `json:"provider" yaml:"provider"`
	Model        string    `json:"model" yaml:"model"`
	SystemPrompt string    `json:"systemPrompt" yaml:"system-prompt"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
}

func (p *Prompt) Clone() *Prompt {
	ret := *p
	return &ret
}

func (p *Prompt) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPrompt)
	}
	return nil
}

func NewPromptID() string {
	return uuid.NewString()
}

const (
	defaultProvider = "Anthropic"
	defaultModel    = "claude-sonnet-4-5-20250929"
)

// DefaultPrompts are the presets a fresh installation starts with.
func DefaultPrompts(now time.Time) []*Prompt {
	return []*Prompt{
		{
			ID:           "general-assistant",
			Title:        "General Assistant",
			Icon:         "💬",
			Provider:     defaultProvider,
			Model:        defaultModel,
			SystemPrompt: "",
			Timestamp:    now,
		},
		{
			ID:           "code-helper",
			Title:        "Code Helper",
			Icon:         "💻",
			Provider:     defaultProvider,
			Model:        defaultModel,
			SystemPrompt: "You are an expert programming assistant. Help users write clean, efficient, and well-documented code. Explain your solutions clearly and suggest best practices. When providing code examples, include comments to explain key concepts.",
			Timestamp:    now,
		},
		{
			ID:           "math-tutor",
			Title:        "Math Tutor",
			Icon:         "🔢",
			Provider:     defaultProvider,
			Model:        defaultModel,
			SystemPrompt: "You are a patient and knowledgeable math tutor. Help students understand mathematical concepts by breaking them down step-by-step. Use LaTeX notation for formulas and equations. Encourage learning through examples and practice problems.",
			Timestamp:    now,
		},
	}
}
