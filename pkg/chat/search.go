package chat

import (
	"context"
	"sort"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/rs/zerolog/log"
)

// List returns every chat, pinned chats first, then newest first. Documents
// are migrated in memory only; Get writes migrations back.
func (s *Service) List(ctx context.Context) ([]*conversation.Chat, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]*conversation.Chat, 0, len(docs))
	for _, doc := range docs {
		chat, _ := conversation.Migrate(doc)
		ret = append(ret, chat)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].IsPinned != ret[j].IsPinned {
			return ret[i].IsPinned
		}
		return ret[i].Timestamp.After(ret[j].Timestamp.Time)
	})
	return ret, nil
}

// Search matches query case-insensitively against titles and message text.
// Chats whose title matches come before chats that only match in content.
// An empty query lists everything.
func (s *Service) Search(ctx context.Context, query string) ([]*conversation.Chat, error) {
	chats, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return chats, nil
	}

	var byTitle, byContent []*conversation.Chat
	for _, c := range chats {
		switch {
		case strings.Contains(strings.ToLower(c.Title), q):
			byTitle = append(byTitle, c)
		case strings.Contains(strings.ToLower(searchText(c)), q):
			byContent = append(byContent, c)
		}
	}
	log.Debug().Str("query", query).Int("titles", len(byTitle)).Int("content", len(byContent)).Msg("searched chats")
	return append(byTitle, byContent...), nil
}

func searchText(c *conversation.Chat) string {
	parts := make([]string, 0, len(c.MessagesMap))
	for _, m := range c.MessagesMap {
		for _, b := range m.Content {
			if b.Type == conversation.BlockTypeText {
				parts = append(parts, b.Text)
			}
		}
	}
	return strings.Join(parts, " ")
}

type MigrationReport struct {
	Total    int                   `json:"total" yaml:"total"`
	Migrated []conversation.ChatID `json:"migrated" yaml:"migrated"`
	Failed   []conversation.ChatID `json:"failed" yaml:"failed"`
	DryRun   bool                  `json:"dryRun" yaml:"dry-run"`
}

// MigrateAll rewrites every stored document that is not in the current form.
// With dryRun nothing is written.
func (s *Service) MigrateAll(ctx context.Context, dryRun bool) (*MigrationReport, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	report := &MigrationReport{
		Total:    len(docs),
		Migrated: []conversation.ChatID{},
		Failed:   []conversation.ChatID{},
		DryRun:   dryRun,
	}
	for _, doc := range docs {
		chat, migrated := conversation.Migrate(doc)
		if !migrated {
			continue
		}
		if !dryRun {
			if err := s.store.Put(ctx, chat); err != nil {
				log.Error().Err(err).Str("chat", chat.ID.String()).Msg("could not write migrated chat")
				report.Failed = append(report.Failed, chat.ID)
				continue
			}
		}
		report.Migrated = append(report.Migrated, chat.ID)
	}
	log.Info().
		Int("total", report.Total).
		Int("migrated", len(report.Migrated)).
		Int("failed", len(report.Failed)).
		Bool("dry-run", dryRun).
		Msg("migration finished")
	return report, nil
}
