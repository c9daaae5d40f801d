package main

import (
	"time"

	"github.com/go-go-golems/forkchat/pkg/chat"
	"github.com/go-go-golems/forkchat/pkg/config"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/prompts"
	"github.com/go-go-golems/forkchat/pkg/providers/claude"
	"github.com/go-go-golems/forkchat/pkg/providers/factory"
	"github.com/go-go-golems/forkchat/pkg/store"
	"github.com/go-go-golems/forkchat/pkg/summarizer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// app wires the stores, providers and services described by the settings.
type app struct {
	store      store.ChatStore
	prompts    prompts.Store
	registry   *factory.Registry
	summarizer summarizer.Summarizer
	bus        *events.Bus
	chats      *chat.Service
}

func newApp(s *config.Settings) (*app, error) {
	chatStore, err := store.Open(store.Backend(s.Storage.Backend), s.Storage.Path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open chat store")
	}

	var promptStore prompts.Store = prompts.NewInMemoryStore(prompts.DefaultPrompts(nowUTC())...)
	if s.Prompts.Path != "" {
		promptStore, err = prompts.NewYAMLFileStore(s.Prompts.Path)
		if err != nil {
			_ = chatStore.Close()
			return nil, err
		}
	}

	registry := factory.NewRegistryFromSettings(s.Providers)

	var sum summarizer.Summarizer = summarizer.Static{}
	if s.Summarizer.Enabled && s.Providers.Anthropic.Configured() {
		c, err := summarizer.NewClaude(claude.New(s.Providers.Anthropic.APIKey, s.Providers.Anthropic.BaseURL), s.Summarizer.Model)
		if err != nil {
			_ = chatStore.Close()
			return nil, err
		}
		sum = c
	} else if s.Summarizer.Enabled {
		log.Warn().Msg("summarizer needs an Anthropic API key, titles stay numbered")
	}

	bus := events.NewBus(events.WithLogger(events.NewWatermill(log.Logger)))

	chats := chat.NewService(chatStore, registry,
		chat.WithSummarizer(sum),
		chat.WithPublisher(bus),
		chat.WithPrompts(promptStore),
		chat.WithSettings(chat.Settings{
			DefaultProvider: s.Defaults.Provider,
			DefaultModel:    s.Defaults.Model,
			ThinkingEnabled: s.Defaults.ThinkingEnabled,
		}),
	)

	return &app{
		store:      chatStore,
		prompts:    promptStore,
		registry:   registry,
		summarizer: sum,
		bus:        bus,
		chats:      chats,
	}, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (a *app) Close() error {
	busErr := a.bus.Close()
	if err := a.store.Close(); err != nil {
		return err
	}
	return busErr
}
