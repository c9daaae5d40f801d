// Package chat runs the chat flows on top of the conversation tree: creating
// and listing chats, sending messages, editing, regenerating and navigating
// branches. Every mutation is followed by a put of the whole document.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/prompts"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/go-go-golems/forkchat/pkg/store"
	"github.com/go-go-golems/forkchat/pkg/summarizer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProviderResolver looks up a provider by the name stored on a chat.
type ProviderResolver interface {
	Get(name string) (providers.Provider, error)
}

// Publisher receives chat events. *events.Bus implements it.
type Publisher interface {
	PublishBlind(ctx context.Context, ev *events.ChatEvent)
}

type nopPublisher struct{}

func (nopPublisher) PublishBlind(context.Context, *events.ChatEvent) {}

type Settings struct {
	DefaultProvider string
	DefaultModel    string
	ThinkingEnabled bool
}

type Service struct {
	store      store.ChatStore
	providers  ProviderResolver
	summarizer summarizer.Summarizer
	publisher  Publisher
	prompts    prompts.Store
	settings   Settings
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[conversation.ChatID]bool
}

type Option func(*Service)

func WithSummarizer(s summarizer.Summarizer) Option {
	return func(svc *Service) {
		svc.summarizer = s
	}
}

func WithPublisher(p Publisher) Option {
	return func(svc *Service) {
		svc.publisher = p
	}
}

func WithPrompts(p prompts.Store) Option {
	return func(svc *Service) {
		svc.prompts = p
	}
}

func WithSettings(s Settings) Option {
	return func(svc *Service) {
		svc.settings = s
	}
}

// WithClock replaces the wall clock used for message and chat timestamps.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		svc.now = now
	}
}

func NewService(s store.ChatStore, resolver ProviderResolver, options ...Option) *Service {
	ret := &Service{
		store:      s,
		providers:  resolver,
		summarizer: summarizer.Static{},
		publisher:  nopPublisher{},
		settings: Settings{
			DefaultProvider: conversation.DefaultProvider,
			DefaultModel:    conversation.DefaultModel,
			ThinkingEnabled: true,
		},
		now:      time.Now,
		inFlight: map[conversation.ChatID]bool{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (s *Service) timestamp() conversation.Timestamp {
	return conversation.NewTimestamp(s.now())
}

// displayProvider normalizes a provider name to its display form.
func displayProvider(name string) (string, error) {
	n, err := providers.ParseName(name)
	if err != nil {
		return "", &conversation.ValidationError{Field: "provider", Reason: err}
	}
	return n.DisplayName(), nil
}

// defaultModel is the first model a configured provider lists.
func (s *Service) defaultModel(provider string) string {
	if s.providers == nil {
		return ""
	}
	p, err := s.providers.Get(provider)
	if err != nil {
		return ""
	}
	if models := p.Models(); len(models) > 0 {
		return models[0].ID
	}
	return ""
}

type CreateRequest struct {
	Title        string `json:"title,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	// PromptID starts the chat from a prompt preset. Explicit fields win over
	// the preset.
	PromptID string `json:"promptId,omitempty"`
}

// Create persists a new empty chat. Without a title it is named after the
// number of chats, "New Chat N".
func (s *Service) Create(ctx context.Context, req CreateRequest) (*conversation.Chat, error) {
	provider, model, systemPrompt, emoji := s.settings.DefaultProvider, s.settings.DefaultModel, "", ""
	if req.PromptID != "" {
		if s.prompts == nil {
			return nil, &prompts.NotFoundError{ID: req.PromptID}
		}
		p, err := s.prompts.Get(ctx, req.PromptID)
		if err != nil {
			return nil, err
		}
		provider, model, systemPrompt, emoji = p.Provider, p.Model, p.SystemPrompt, p.Icon
	}
	if req.Provider != "" {
		provider = req.Provider
		if req.Model == "" {
			model = ""
		}
	}
	if req.Model != "" {
		model = req.Model
	}
	if req.SystemPrompt != "" {
		systemPrompt = req.SystemPrompt
	}

	provider, err := displayProvider(provider)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = s.defaultModel(provider)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		docs, err := s.store.List(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "could not count chats")
		}
		title = conversation.NumberedTitle(len(docs) + 1)
	}

	chat := conversation.NewChat(conversation.NewChatID(),
		conversation.WithTitle(title),
		conversation.WithProvider(provider, model),
		conversation.WithSystemPrompt(systemPrompt),
		conversation.WithEmoji(emoji),
		conversation.WithChatTime(s.timestamp()),
	)
	if err := s.store.Put(ctx, chat); err != nil {
		return nil, errors.Wrap(err, "could not save new chat")
	}
	log.Info().Str("chat", chat.ID.String()).Str("provider", chat.Provider).Str("model", chat.Model).Msg("created chat")
	return chat, nil
}

// Get loads a chat, migrating and re-saving it if it was stored in an older
// form.
func (s *Service) Get(ctx context.Context, id conversation.ChatID) (*conversation.Chat, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	chat, migrated := conversation.Migrate(doc)
	if migrated {
		if err := s.store.Put(ctx, chat); err != nil {
			log.Warn().Err(err).Str("chat", id.String()).Msg("could not save migrated chat")
		} else {
			log.Info().Str("chat", id.String()).Msg("migrated chat document")
		}
	}
	return chat, nil
}

// Replace stores a whole chat document under id, as sent by a client.
func (s *Service) Replace(ctx context.Context, id conversation.ChatID, doc *conversation.Document) (*conversation.Chat, error) {
	chat, _ := conversation.Migrate(doc)
	chat.ID = id
	if err := chat.Validate(); err != nil {
		return nil, &conversation.ValidationError{Field: "messagesMap", Reason: err}
	}
	if err := s.store.Put(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// Patch holds the chat metadata a client may change. Nil fields are left
// alone.
type Patch struct {
	Title        *string `json:"title,omitempty"`
	IsPinned     *bool   `json:"isPinned,omitempty"`
	Provider     *string `json:"provider,omitempty"`
	Model        *string `json:"model,omitempty"`
	SystemPrompt *string `json:"systemPrompt,omitempty"`
	Emoji        *string `json:"emoji,omitempty"`
}

func (s *Service) Update(ctx context.Context, id conversation.ChatID, patch Patch) (*conversation.Chat, error) {
	chat, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, &conversation.ValidationError{Field: "title", Reason: conversation.ErrEmptyContent}
		}
		chat.Title = title
	}
	if patch.IsPinned != nil {
		chat.IsPinned = *patch.IsPinned
	}
	if patch.Provider != nil {
		provider, err := displayProvider(*patch.Provider)
		if err != nil {
			return nil, err
		}
		chat.Provider = provider
	}
	if patch.Model != nil && strings.TrimSpace(*patch.Model) != "" {
		chat.Model = strings.TrimSpace(*patch.Model)
	}
	if patch.SystemPrompt != nil {
		chat.SystemPrompt = *patch.SystemPrompt
	}
	if patch.Emoji != nil && *patch.Emoji != "" {
		chat.Emoji = *patch.Emoji
	}
	if err := s.store.Put(ctx, chat); err != nil {
		return nil, err
	}
	s.publisher.PublishBlind(ctx, events.NewChatUpdatedEvent(chat))
	return chat, nil
}

func (s *Service) Rename(ctx context.Context, id conversation.ChatID, title string) (*conversation.Chat, error) {
	return s.Update(ctx, id, Patch{Title: &title})
}

func (s *Service) SetPinned(ctx context.Context, id conversation.ChatID, pinned bool) (*conversation.Chat, error) {
	return s.Update(ctx, id, Patch{IsPinned: &pinned})
}

func (s *Service) Delete(ctx context.Context, id conversation.ChatID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("chat", id.String()).Msg("deleted chat")
	return nil
}

// mutate loads a chat, applies a tree operation and saves the result. A
// failing operation leaves the stored chat untouched.
func (s *Service) mutate(
	ctx context.Context,
	id conversation.ChatID,
	op func(*conversation.Tree) (*conversation.Tree, error),
) (*conversation.Chat, error) {
	chat, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tree, err := op(&chat.Tree)
	if err != nil {
		return nil, err
	}
	chat = chat.WithTree(tree)
	if err := s.store.Put(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *Service) SwitchBranch(ctx context.Context, id conversation.ChatID, messageID conversation.NodeID) (*conversation.Chat, error) {
	return s.mutate(ctx, id, func(t *conversation.Tree) (*conversation.Tree, error) {
		return t.SwitchToBranch(messageID)
	})
}

func (s *Service) BranchFrom(ctx context.Context, id conversation.ChatID, messageID conversation.NodeID) (*conversation.Chat, error) {
	return s.mutate(ctx, id, func(t *conversation.Tree) (*conversation.Tree, error) {
		return t.BranchFrom(messageID)
	})
}

func (s *Service) DeleteMessage(ctx context.Context, id conversation.ChatID, messageID conversation.NodeID) (*conversation.Chat, error) {
	return s.mutate(ctx, id, func(t *conversation.Tree) (*conversation.Tree, error) {
		return t.DeleteMessage(messageID)
	})
}

func (s *Service) BranchMessages(ctx context.Context, id conversation.ChatID) ([]*conversation.Message, error) {
	chat, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return chat.BranchMessages(), nil
}

func (s *Service) TreeView(ctx context.Context, id conversation.ChatID) (*conversation.TreeView, error) {
	chat, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return conversation.BuildTreeView(&chat.Tree), nil
}
