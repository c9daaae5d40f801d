package chat

import (
	"context"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/go-go-golems/forkchat/pkg/summarizer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func (s *Service) acquire(id conversation.ChatID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return &InferenceInProgressError{ChatID: id}
	}
	s.inFlight[id] = true
	return nil
}

func (s *Service) release(id conversation.ChatID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// IsGenerating reports whether a reply is currently being generated for id.
func (s *Service) IsGenerating(id conversation.ChatID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[id]
}

// Send appends a user message to the current branch and generates the reply.
// Provider failures end up in the tree as an error message and are not
// returned; a cancelled context leaves only the user message behind.
func (s *Service) Send(ctx context.Context, id conversation.ChatID, text string) (*conversation.Chat, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &conversation.ValidationError{Field: "content", Reason: conversation.ErrEmptyContent}
	}
	if err := s.acquire(id); err != nil {
		return nil, err
	}
	defer s.release(id)

	chat, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	isFirst := chat.Len() == 0 && chat.Leaf().IsZero()

	user := conversation.NewUserMessage(trimmed,
		conversation.WithParentID(chat.Leaf()),
		conversation.WithTime(s.now()),
	)
	tree, err := chat.AppendMessage(user)
	if err != nil {
		return nil, err
	}
	chat = chat.WithTree(tree)
	chat.LastMessage = trimmed
	chat.Timestamp = s.timestamp()
	if err := s.store.Put(ctx, chat); err != nil {
		return nil, errors.Wrap(err, "could not save user message")
	}

	summarize := ""
	if isFirst {
		summarize = trimmed
	}
	return s.respond(ctx, chat, user.ID, summarize)
}

// EditMessage rewrites a message and drops everything below it. Editing a
// user message then generates a fresh reply to it; editing a reply only
// rewrites the reply.
func (s *Service) EditMessage(ctx context.Context, id conversation.ChatID, messageID conversation.NodeID, text string) (*conversation.Chat, error) {
	if err := s.acquire(id); err != nil {
		return nil, err
	}
	defer s.release(id)

	chat, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	msg, ok := chat.Message(messageID)
	if !ok {
		return nil, &conversation.LookupError{ID: messageID, Reason: conversation.ErrMessageNotFound}
	}
	role := msg.Role

	tree, err := chat.EditMessageAt(messageID, text, s.now())
	if err != nil {
		return nil, err
	}
	if role == conversation.RoleUser {
		if tree, err = tree.SwitchToBranch(messageID); err != nil {
			return nil, err
		}
	}
	chat = chat.WithTree(tree)

	if role != conversation.RoleUser {
		if err := s.store.Put(ctx, chat); err != nil {
			return nil, err
		}
		return chat, nil
	}

	chat.LastMessage = strings.TrimSpace(text)
	chat.Timestamp = s.timestamp()
	if err := s.store.Put(ctx, chat); err != nil {
		return nil, errors.Wrap(err, "could not save edited message")
	}
	return s.respond(ctx, chat, messageID, "")
}

// Regenerate asks for another reply to the message an assistant reply
// answered. The new reply becomes a sibling of the old one, which stays
// reachable as its own branch.
func (s *Service) Regenerate(ctx context.Context, id conversation.ChatID, messageID conversation.NodeID) (*conversation.Chat, error) {
	if err := s.acquire(id); err != nil {
		return nil, err
	}
	defer s.release(id)

	chat, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	msg, ok := chat.Message(messageID)
	if !ok {
		return nil, &conversation.LookupError{ID: messageID, Reason: conversation.ErrMessageNotFound}
	}
	if msg.Role != conversation.RoleAssistant || msg.IsRoot() {
		return nil, &conversation.ValidationError{Field: "messageId", Reason: ErrNotAssistantMessage}
	}
	parentID := msg.ParentID

	tree, err := chat.SwitchToBranch(parentID)
	if err != nil {
		return nil, err
	}
	if tree, err = tree.BranchFrom(parentID); err != nil {
		return nil, err
	}
	chat = chat.WithTree(tree)
	if err := s.store.Put(ctx, chat); err != nil {
		return nil, err
	}
	return s.respond(ctx, chat, parentID, "")
}

func (s *Service) options(chat *conversation.Chat) providers.Options {
	return providers.Options{
		Model:           chat.Model,
		SystemPrompt:    chat.SystemPrompt,
		ThinkingEnabled: s.settings.ThinkingEnabled,
	}
}

// respond generates the reply to parentID, which must be the leaf of chat's
// current branch. When summarize is not empty the title and emoji are
// derived from it while the reply streams.
func (s *Service) respond(
	ctx context.Context,
	chat *conversation.Chat,
	parentID conversation.NodeID,
	summarize string,
) (*conversation.Chat, error) {
	chatID := chat.ID
	logger := log.With().Str("chat", chatID.String()).Str("parent", parentID.String()).Logger()
	s.publisher.PublishBlind(ctx, events.NewStartEvent(chatID, parentID))

	var g errgroup.Group
	var summary summarizer.Summary
	if summarize != "" {
		g.Go(func() error {
			summary = s.summarizer.Summarize(ctx, summarize)
			return nil
		})
	}

	reply, inferErr := s.infer(ctx, chat, parentID)
	_ = g.Wait()

	if ctx.Err() != nil {
		logger.Info().Err(ctx.Err()).Msg("inference cancelled, no reply stored")
		return nil, errors.Wrap(ctx.Err(), "inference cancelled")
	}

	latest, err := s.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	tree := &latest.Tree
	if _, ok := tree.Message(parentID); !ok {
		logger.Warn().Msg("message was deleted while the reply was generated, dropping reply")
		return latest, &conversation.LookupError{ID: parentID, Reason: conversation.ErrMessageNotFound}
	}
	if tree.Leaf() != parentID {
		if tree, err = tree.SwitchToBranch(parentID); err != nil {
			return nil, err
		}
		if tree, err = tree.BranchFrom(parentID); err != nil {
			return nil, err
		}
	}

	var msg *conversation.Message
	if inferErr != nil {
		logger.Warn().Err(inferErr).Msg("inference failed")
		msg = conversation.NewErrorMessage(inferErr,
			conversation.WithParentID(parentID),
			conversation.WithTime(s.now()),
		)
	} else {
		msg = reply
		msg.ID = conversation.NewNodeID()
		msg.ParentID = parentID
		msg.Timestamp = s.timestamp()
	}

	if tree, err = tree.AppendMessage(msg); err != nil {
		return nil, err
	}
	updated := latest.WithTree(tree)
	titleChanged := false
	if inferErr == nil {
		updated.LastMessage = conversation.NoResponseSummary
		if text, ok := msg.Content.FirstText(); ok && strings.TrimSpace(text) != "" {
			updated.LastMessage = text
		}
		// a rename or new emoji made while the reply streamed wins over the summary
		if summary.Title != "" && latest.Title == chat.Title {
			updated.Title = summary.Title
			titleChanged = true
		}
		if summary.Emoji != "" && summary.Emoji != updated.Emoji && latest.Emoji == chat.Emoji {
			updated.Emoji = summary.Emoji
			titleChanged = true
		}
	}
	updated.Timestamp = s.timestamp()

	if err := s.store.Put(ctx, updated); err != nil {
		return nil, errors.Wrap(err, "could not save reply")
	}

	if inferErr != nil {
		s.publisher.PublishBlind(ctx, events.NewErrorEvent(chatID, parentID, inferErr))
	} else {
		s.publisher.PublishBlind(ctx, events.NewFinalEvent(chatID, msg))
	}
	if titleChanged {
		s.publisher.PublishBlind(ctx, events.NewChatUpdatedEvent(updated))
	}
	logger.Debug().Str("reply", msg.ID.String()).Bool("error", msg.IsError).Msg("stored reply")

	return updated, nil
}

func (s *Service) infer(ctx context.Context, chat *conversation.Chat, parentID conversation.NodeID) (*conversation.Message, error) {
	if s.providers == nil {
		return nil, providers.NotConfiguredError(providers.Name(chat.Provider))
	}
	p, err := s.providers.Get(chat.Provider)
	if err != nil {
		return nil, err
	}
	return providers.Send(ctx, p, chat.BranchMessages(), s.options(chat), func(c providers.Chunk) {
		s.publisher.PublishBlind(ctx, events.NewPartialEvent(chat.ID, parentID, c))
	})
}
