package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSavePrependsNewPrompts(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(DefaultPrompts(time.Now())...)

	saved, err := s.Save(ctx, &Prompt{Title: "Poet", Icon: "🪶"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.Timestamp.IsZero())

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Poet", all[0].Title)
	assert.Equal(t, "General Assistant", all[1].Title)

	saved.Title = "Poet Laureate"
	_, err = s.Save(ctx, saved)
	require.NoError(t, err)
	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Poet Laureate", got.Title)

	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestInMemoryStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrPromptNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "nope"), ErrPromptNotFound)

	_, err = s.Save(ctx, &Prompt{Title: "  "})
	assert.ErrorIs(t, err, ErrInvalidPrompt)
}

func TestYAMLFileStoreSeedsDefaults(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "prompts.yaml")

	s, err := NewYAMLFileStore(path)
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"General Assistant", "Code Helper", "Math Tutor"}, []string{all[0].Title, all[1].Title, all[2].Title})
	assert.Equal(t, "🔢", all[2].Icon)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestYAMLFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prompts.yaml")

	s, err := NewYAMLFileStore(path)
	require.NoError(t, err)
	_, err = s.Save(ctx, &Prompt{ID: "reviewer", Title: "Reviewer", Provider: "DeepSeek", Model: "deepseek-chat", SystemPrompt: "Review code."})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "math-tutor"))

	reopened, err := NewYAMLFileStore(path)
	require.NoError(t, err)
	all, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "reviewer", all[0].ID)
	assert.Equal(t, "Review code.", all[0].SystemPrompt)

	_, err = reopened.Get(ctx, "math-tutor")
	assert.ErrorIs(t, err, ErrPromptNotFound)
}
