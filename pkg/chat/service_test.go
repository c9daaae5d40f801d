package chat

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/prompts"
	"github.com/go-go-golems/forkchat/pkg/providers"
	"github.com/go-go-golems/forkchat/pkg/providers/echo"
	"github.com/go-go-golems/forkchat/pkg/providers/factory"
	"github.com/go-go-golems/forkchat/pkg/store"
	"github.com/go-go-golems/forkchat/pkg/summarizer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.ChatEvent
}

func (r *recordingPublisher) PublishBlind(_ context.Context, ev *events.ChatEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := []events.EventType{}
	for _, ev := range r.events {
		if ev.Type == events.EventTypePartial && len(ret) > 0 && ret[len(ret)-1] == events.EventTypePartial {
			continue
		}
		ret = append(ret, ev.Type)
	}
	return ret
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, message string) summarizer.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, message)
	return summarizer.Summary{Title: "Greeting", Emoji: "👋"}
}

func (f *fakeSummarizer) Emoji(context.Context, string) string {
	return "👋"
}

// failingProvider answers every request with an error.
type failingProvider struct {
	name providers.Name
	err  error
}

func (f *failingProvider) Name() providers.Name      { return f.name }
func (f *failingProvider) Models() []providers.Model { return []providers.Model{{ID: "broken"}} }

func (f *failingProvider) Stream(ctx context.Context, _ []*conversation.Message, _ providers.Options) (<-chan providers.Event, error) {
	out := make(chan providers.Event, 1)
	out <- providers.NewErrorEvent(f.err)
	close(out)
	return out, nil
}

// gatedProvider replies "done" once release is closed.
type gatedProvider struct {
	started chan struct{}
	release chan struct{}
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedProvider) Name() providers.Name      { return providers.DeepSeek }
func (g *gatedProvider) Models() []providers.Model { return []providers.Model{{ID: "gated"}} }

func (g *gatedProvider) Stream(ctx context.Context, _ []*conversation.Message, _ providers.Options) (<-chan providers.Event, error) {
	out := make(chan providers.Event)
	go func() {
		defer close(out)
		g.started <- struct{}{}
		select {
		case <-ctx.Done():
			return
		case <-g.release:
		}
		providers.Emit(ctx, out, providers.NewFinalEvent(conversation.NewTextContent("done")))
	}()
	return out, nil
}

type fixture struct {
	svc        *Service
	store      store.ChatStore
	publisher  *recordingPublisher
	summarizer *fakeSummarizer
	gated      *gatedProvider
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()
	registry := factory.NewRegistry()
	registry.Register(&echo.Provider{})
	registry.Register(&failingProvider{
		name: providers.Anthropic,
		err:  providers.NewStatusError(providers.Anthropic, 529, errors.New("overloaded")),
	})
	gated := newGatedProvider()
	registry.Register(gated)

	var mu sync.Mutex
	clock := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	f := &fixture{
		store:      store.NewInMemoryChatStore(),
		publisher:  &recordingPublisher{},
		summarizer: &fakeSummarizer{},
		gated:      gated,
	}
	options = append([]Option{
		WithPublisher(f.publisher),
		WithSummarizer(f.summarizer),
		WithClock(now),
	}, options...)
	f.svc = NewService(f.store, registry, options...)
	return f
}

func (f *fixture) create(t *testing.T, provider string) *conversation.Chat {
	t.Helper()
	chat, err := f.svc.Create(context.Background(), CreateRequest{Provider: provider})
	require.NoError(t, err)
	return chat
}

func (f *fixture) stored(t *testing.T, id conversation.ChatID) *conversation.Chat {
	t.Helper()
	chat, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, chat.Validate())
	return chat
}

func texts(msgs []*conversation.Message) []string {
	ret := []string{}
	for _, m := range msgs {
		ret = append(ret, m.Content.Text())
	}
	return ret
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, "")
	assert.Equal(t, "New Chat 1", first.Title)
	assert.Equal(t, conversation.DefaultProvider, first.Provider)
	assert.Equal(t, conversation.DefaultModel, first.Model)
	assert.Equal(t, conversation.DefaultEmoji, first.Emoji)
	assert.Equal(t, conversation.DefaultLastMessage, first.LastMessage)

	second := f.create(t, "echo")
	assert.Equal(t, "New Chat 2", second.Title)
	assert.Equal(t, "Echo", second.Provider)
	assert.Equal(t, "echo", second.Model)

	titled, err := f.svc.Create(ctx, CreateRequest{Title: "  Named  ", Provider: "Gemini", Model: "gemini-2.0-flash"})
	require.NoError(t, err)
	assert.Equal(t, "Named", titled.Title)
	assert.Equal(t, "Gemini", titled.Provider)
	assert.Equal(t, "gemini-2.0-flash", titled.Model)

	_, err = f.svc.Create(ctx, CreateRequest{Provider: "openai"})
	assert.ErrorIs(t, err, conversation.ErrValidation)
}

func TestCreateFromPrompt(t *testing.T) {
	presets := prompts.NewInMemoryStore(&prompts.Prompt{
		ID:           "coder",
		Title:        "Code Helper",
		Icon:         "💻",
		Provider:     "Echo",
		Model:        "echo",
		SystemPrompt: "be terse",
	})
	f := newFixture(t, WithPrompts(presets))
	ctx := context.Background()

	chat, err := f.svc.Create(ctx, CreateRequest{PromptID: "coder"})
	require.NoError(t, err)
	assert.Equal(t, "Echo", chat.Provider)
	assert.Equal(t, "echo", chat.Model)
	assert.Equal(t, "be terse", chat.SystemPrompt)
	assert.Equal(t, "💻", chat.Emoji)

	chat, err = f.svc.Create(ctx, CreateRequest{PromptID: "coder", SystemPrompt: "be verbose"})
	require.NoError(t, err)
	assert.Equal(t, "be verbose", chat.SystemPrompt)

	_, err = f.svc.Create(ctx, CreateRequest{PromptID: "missing"})
	assert.ErrorIs(t, err, prompts.ErrPromptNotFound)
}

func TestSendFirstMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "echo")

	got, err := f.svc.Send(ctx, chat.ID, "  hello big world ")
	require.NoError(t, err)

	branch := got.BranchMessages()
	require.Len(t, branch, 2)
	assert.Equal(t, []string{"hello big world", "hello big world"}, texts(branch))
	assert.Equal(t, conversation.RoleAssistant, branch[1].Role)
	assert.Equal(t, branch[0].ID, branch[1].ParentID)
	_, hasThinking := branch[1].Content.Thinking()
	assert.True(t, hasThinking)

	assert.Equal(t, "Greeting", got.Title)
	assert.Equal(t, "👋", got.Emoji)
	assert.Equal(t, "hello big world", got.LastMessage)
	assert.Equal(t, []string{"hello big world"}, f.summarizer.calls)

	stored := f.stored(t, chat.ID)
	assert.Equal(t, got.CurrentBranchPath, stored.CurrentBranchPath)
	assert.Equal(t, "Greeting", stored.Title)

	assert.Equal(t, []events.EventType{
		events.EventTypeStart,
		events.EventTypePartial,
		events.EventTypeFinal,
		events.EventTypeChatUpdated,
	}, f.publisher.types())

	got, err = f.svc.Send(ctx, chat.ID, "again")
	require.NoError(t, err)
	assert.Len(t, got.BranchMessages(), 4)
	assert.Equal(t, "again", got.LastMessage)
	assert.Len(t, f.summarizer.calls, 1, "only the first exchange is summarized")
}

func TestSendWithoutThinking(t *testing.T) {
	f := newFixture(t, WithSettings(Settings{DefaultProvider: "Echo", DefaultModel: "echo"}))
	chat := f.create(t, "")
	assert.Equal(t, "Echo", chat.Provider)

	got, err := f.svc.Send(context.Background(), chat.ID, "plain")
	require.NoError(t, err)
	_, hasThinking := got.BranchMessages()[1].Content.Thinking()
	assert.False(t, hasThinking)
}

func TestSendProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "")

	got, err := f.svc.Send(ctx, chat.ID, "hi there")
	require.NoError(t, err)

	branch := got.BranchMessages()
	require.Len(t, branch, 2)
	reply := branch[1]
	assert.True(t, reply.IsError)
	assert.Contains(t, reply.Content.Text(), "Error: ")
	assert.Contains(t, reply.Content.Text(), "overloaded")

	assert.Equal(t, "hi there", got.LastMessage)
	assert.Equal(t, "New Chat 1", got.Title, "no title from a failed exchange")
	assert.Equal(t, conversation.DefaultEmoji, got.Emoji)

	f.publisher.mu.Lock()
	last := f.publisher.events[len(f.publisher.events)-1]
	f.publisher.mu.Unlock()
	assert.Equal(t, events.EventTypeError, last.Type)
	assert.Equal(t, providers.KindAPI, last.ErrorKind)
}

func TestSendUnconfiguredProvider(t *testing.T) {
	f := newFixture(t)
	chat := f.create(t, "gemini")

	got, err := f.svc.Send(context.Background(), chat.ID, "anyone?")
	require.NoError(t, err)
	reply := got.BranchMessages()[1]
	assert.True(t, reply.IsError)
	assert.Contains(t, reply.Content.Text(), "no API key found for Gemini")
}

func TestSendRejectsBlankAndMissing(t *testing.T) {
	f := newFixture(t)
	chat := f.create(t, "echo")

	_, err := f.svc.Send(context.Background(), chat.ID, "  \n ")
	assert.ErrorIs(t, err, conversation.ErrEmptyContent)
	assert.Equal(t, 0, f.stored(t, chat.ID).Len())

	_, err = f.svc.Send(context.Background(), "nope", "hi")
	assert.ErrorIs(t, err, store.ErrChatNotFound)
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "echo")

	chat, err := f.svc.Send(ctx, chat.ID, "say this")
	require.NoError(t, err)
	user, oldReply := chat.CurrentBranchPath[0], chat.CurrentBranchPath[1]

	got, err := f.svc.Regenerate(ctx, chat.ID, oldReply)
	require.NoError(t, err)

	assert.Len(t, got.MessagesMap, 3)
	children := got.Children(user)
	require.Len(t, children, 2)
	assert.Equal(t, oldReply, children[0])
	assert.Equal(t, []conversation.NodeID{user, children[1]}, got.CurrentBranchPath)
	assert.Equal(t, "say this", got.MessagesMap[children[1]].Content.Text())

	switched, err := f.svc.SwitchBranch(ctx, chat.ID, oldReply)
	require.NoError(t, err)
	assert.Equal(t, []conversation.NodeID{user, oldReply}, switched.CurrentBranchPath)

	_, err = f.svc.Regenerate(ctx, chat.ID, user)
	assert.ErrorIs(t, err, ErrNotAssistantMessage)
	_, err = f.svc.Regenerate(ctx, chat.ID, "ghost")
	assert.ErrorIs(t, err, conversation.ErrMessageNotFound)
}

func TestEditUserMessageRegenerates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "echo")

	_, err := f.svc.Send(ctx, chat.ID, "first question")
	require.NoError(t, err)
	chat, err = f.svc.Send(ctx, chat.ID, "second question")
	require.NoError(t, err)
	require.Len(t, chat.MessagesMap, 4)
	first := chat.CurrentBranchPath[0]

	got, err := f.svc.EditMessage(ctx, chat.ID, first, " rewritten question ")
	require.NoError(t, err)

	assert.Len(t, got.MessagesMap, 2)
	branch := got.BranchMessages()
	require.Len(t, branch, 2)
	assert.Equal(t, []string{"rewritten question", "rewritten question"}, texts(branch))
	assert.True(t, branch[0].Edited)
	assert.NotNil(t, branch[0].EditedAt)
	assert.Equal(t, "rewritten question", got.LastMessage)

	_, err = f.svc.EditMessage(ctx, chat.ID, first, "   ")
	assert.ErrorIs(t, err, conversation.ErrEmptyContent)
}

func TestEditAssistantMessageOnlyRewrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "echo")

	chat, err := f.svc.Send(ctx, chat.ID, "question")
	require.NoError(t, err)
	reply := chat.CurrentBranchPath[1]
	before := len(f.publisher.types())

	got, err := f.svc.EditMessage(ctx, chat.ID, reply, "better answer")
	require.NoError(t, err)
	assert.Len(t, got.MessagesMap, 2)
	assert.Equal(t, conversation.NewTextContent("better answer"), got.MessagesMap[reply].Content)
	assert.Equal(t, chat.CurrentBranchPath, got.CurrentBranchPath)
	assert.Len(t, f.publisher.types(), before, "no inference")
}

func TestDeleteAndBranchMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "echo")

	_, err := f.svc.Send(ctx, chat.ID, "one")
	require.NoError(t, err)
	chat, err = f.svc.Send(ctx, chat.ID, "two")
	require.NoError(t, err)

	branched, err := f.svc.BranchFrom(ctx, chat.ID, chat.CurrentBranchPath[1])
	require.NoError(t, err)
	assert.Len(t, branched.CurrentBranchPath, 2)

	got, err := f.svc.DeleteMessage(ctx, chat.ID, chat.CurrentBranchPath[2])
	require.NoError(t, err)
	assert.Len(t, got.MessagesMap, 2)

	msgs, err := f.svc.BranchMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "one"}, texts(msgs))

	view, err := f.svc.TreeView(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, view.Nodes, 2)

	_, err = f.svc.DeleteMessage(ctx, chat.ID, "ghost")
	assert.ErrorIs(t, err, conversation.ErrMessageNotFound)
	_, err = f.svc.BranchFrom(ctx, chat.ID, "ghost")
	assert.ErrorIs(t, err, conversation.ErrNotInBranch)
}

func TestOneInferencePerChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "deepseek")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Send(ctx, chat.ID, "slow")
		done <- err
	}()
	<-f.gated.started
	assert.True(t, f.svc.IsGenerating(chat.ID))

	_, err := f.svc.Send(ctx, chat.ID, "impatient")
	assert.ErrorIs(t, err, ErrInferenceInProgress)
	_, err = f.svc.Regenerate(ctx, chat.ID, "x")
	assert.ErrorIs(t, err, ErrInferenceInProgress)

	close(f.gated.release)
	require.NoError(t, <-done)
	assert.False(t, f.svc.IsGenerating(chat.ID))
	assert.Equal(t, []string{"slow", "done"}, texts(f.stored(t, chat.ID).BranchMessages()))
}

func TestCancelledSendKeepsOnlyUserMessage(t *testing.T) {
	f := newFixture(t)
	chat := f.create(t, "deepseek")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Send(ctx, chat.ID, "never mind")
		done <- err
	}()
	<-f.gated.started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	stored := f.stored(t, chat.ID)
	assert.Equal(t, []string{"never mind"}, texts(stored.BranchMessages()))
	assert.Equal(t, "never mind", stored.LastMessage)
}

func TestReplyDroppedWhenParentDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "deepseek")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Send(ctx, chat.ID, "doomed")
		done <- err
	}()
	<-f.gated.started

	current := f.stored(t, chat.ID)
	_, err := f.svc.DeleteMessage(ctx, chat.ID, current.CurrentBranchPath[0])
	require.NoError(t, err)
	close(f.gated.release)

	assert.ErrorIs(t, <-done, conversation.ErrMessageNotFound)
	assert.Equal(t, 0, f.stored(t, chat.ID).Len())
}

func TestReplyKeepsConcurrentMetadataChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "deepseek")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Send(ctx, chat.ID, "question")
		done <- err
	}()
	<-f.gated.started

	current := f.stored(t, chat.ID)
	user := current.CurrentBranchPath[0]
	_, err := f.svc.Update(ctx, chat.ID, Patch{Title: ptr("renamed meanwhile")})
	require.NoError(t, err)
	close(f.gated.release)
	require.NoError(t, <-done)

	stored := f.stored(t, chat.ID)
	assert.Equal(t, "renamed meanwhile", stored.Title)
	assert.Equal(t, "👋", stored.Emoji, "the emoji was not touched and still comes from the summary")
	require.Len(t, stored.CurrentBranchPath, 2)
	assert.Equal(t, user, stored.CurrentBranchPath[0])
}

func ptr[T any](v T) *T {
	return &v
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.create(t, "")

	got, err := f.svc.Update(ctx, chat.ID, Patch{
		Title:        ptr(" Trip plans "),
		IsPinned:     ptr(true),
		Provider:     ptr("kimi"),
		Model:        ptr("kimi-k2.5"),
		SystemPrompt: ptr("you plan trips"),
		Emoji:        ptr("✈️"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Trip plans", got.Title)
	assert.True(t, got.IsPinned)
	assert.Equal(t, "Kimi", got.Provider)
	assert.Equal(t, "kimi-k2.5", got.Model)
	assert.Equal(t, "you plan trips", got.SystemPrompt)
	assert.Equal(t, "✈️", got.Emoji)

	_, err = f.svc.Rename(ctx, chat.ID, "  ")
	assert.ErrorIs(t, err, conversation.ErrValidation)
	_, err = f.svc.Update(ctx, chat.ID, Patch{Provider: ptr("nope")})
	assert.ErrorIs(t, err, conversation.ErrValidation)

	unpinned, err := f.svc.SetPinned(ctx, chat.ID, false)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
	assert.Equal(t, "Trip plans", unpinned.Title)

	require.NoError(t, f.svc.Delete(ctx, chat.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, chat.ID), store.ErrChatNotFound)
}

func TestListAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldest := f.create(t, "echo")
	_, err := f.svc.Send(ctx, oldest.ID, "talk about Golang generics")
	require.NoError(t, err)
	_, err = f.svc.Rename(ctx, oldest.ID, "Types")
	require.NoError(t, err)

	middle := f.create(t, "echo")
	_, err = f.svc.Rename(ctx, middle.ID, "golang tips")
	require.NoError(t, err)

	newest := f.create(t, "echo")
	pinned := f.create(t, "echo")
	_, err = f.svc.SetPinned(ctx, pinned.ID, true)
	require.NoError(t, err)

	ids := func(chats []*conversation.Chat) []conversation.ChatID {
		ret := []conversation.ChatID{}
		for _, c := range chats {
			ret = append(ret, c.ID)
		}
		return ret
	}

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, pinned.ID, all[0].ID)
	assert.Equal(t, newest.ID, all[1].ID)

	found, err := f.svc.Search(ctx, "GOLANG")
	require.NoError(t, err)
	assert.Equal(t, []conversation.ChatID{middle.ID, oldest.ID}, ids(found))

	found, err = f.svc.Search(ctx, "   ")
	require.NoError(t, err)
	assert.Len(t, found, 4)

	found, err = f.svc.Search(ctx, "nothing like this")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMigrateAll(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"id": "old", "title": "Old", "messages": [{"role":"user","content":"hi"},{"role":"assistant","content":"yo"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), []byte(legacy), 0o644))

	s, err := store.NewFileChatStore(dir)
	require.NoError(t, err)
	current := conversation.NewChat("current")
	require.NoError(t, s.Put(context.Background(), current))

	svc := NewService(s, factory.NewRegistry())

	report, err := svc.MigrateAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, []conversation.ChatID{"old"}, report.Migrated)
	doc, err := s.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.True(t, doc.IsLegacy(), "dry run writes nothing")

	report, err = svc.MigrateAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []conversation.ChatID{"old"}, report.Migrated)
	assert.Empty(t, report.Failed)

	doc, err = s.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.False(t, doc.IsLegacy())
	assert.Len(t, doc.MessagesMap, 2)

	report, err = svc.MigrateAll(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, report.Migrated)
}
