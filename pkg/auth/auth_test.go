package auth

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSelector_FromEnvironment(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	s := NewEnvSelector(filepath.Join(t.TempDir(), "missing.env"))
	assert.True(t, s.HasSelectedKey(context.Background()))
	assert.Equal(t, "gemini-key", s.APIKey())
}

func TestEnvSelector_NoKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	s := NewEnvSelector(filepath.Join(t.TempDir(), "missing.env"))
	assert.False(t, s.HasSelectedKey(context.Background()))
	assert.ErrorIs(t, s.OpenSelectKey(context.Background()), ErrNoKey)
}

func TestEnvSelector_ReloadsDotenv(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	path := filepath.Join(t.TempDir(), ".env")
	s := NewEnvSelector(path)
	assert.False(t, s.HasSelectedKey(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("GOOGLE_API_KEY=from-file\n"), 0o600))
	require.NoError(t, s.OpenSelectKey(context.Background()))
	assert.True(t, s.HasSelectedKey(context.Background()))
	assert.Equal(t, "from-file", s.APIKey())

	require.NoError(t, os.WriteFile(path, []byte("GOOGLE_API_KEY=rotated\n"), 0o600))
	require.NoError(t, s.OpenSelectKey(context.Background()))
	assert.Equal(t, "rotated", s.APIKey())
}

func TestPromptSelector(t *testing.T) {
	var out strings.Builder
	p := NewPromptSelector(strings.NewReader("  typed-key \n\n"), &out)

	assert.False(t, p.HasSelectedKey(context.Background()))
	require.NoError(t, p.OpenSelectKey(context.Background()))
	assert.Equal(t, "typed-key", p.APIKey())
	assert.Contains(t, out.String(), "API key")

	// an empty answer keeps the current key
	require.NoError(t, p.OpenSelectKey(context.Background()))
	assert.Equal(t, "typed-key", p.APIKey())
}

func TestPromptSelector_EmptyInput(t *testing.T) {
	p := NewPromptSelector(strings.NewReader(""), &strings.Builder{})
	assert.ErrorIs(t, p.OpenSelectKey(context.Background()), ErrNoKey)
	assert.False(t, p.HasSelectedKey(context.Background()))
}

func TestPromptSelector_CancelledPromptKeepsLineForNext(t *testing.T) {
	in, feed := io.Pipe()
	defer feed.Close()
	p := NewPromptSelector(in, &strings.Builder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.OpenSelectKey(ctx), context.Canceled)

	done := make(chan error, 1)
	go func() { done <- p.OpenSelectKey(context.Background()) }()

	_, err := io.WriteString(feed, "second-key\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second prompt did not get the line")
	}
	assert.Equal(t, "second-key", p.APIKey())
}

// staticSelector always holds the same key.
type staticSelector struct{ key string }

func (s *staticSelector) HasSelectedKey(context.Context) bool { return s.key != "" }
func (s *staticSelector) OpenSelectKey(context.Context) error {
	if s.key == "" {
		return ErrNoKey
	}
	return nil
}
func (s *staticSelector) APIKey() string { return s.key }

func TestChain_SkipsRejectedKey(t *testing.T) {
	ctx := context.Background()
	env := &staticSelector{key: "stale"}
	prompt := NewPromptSelector(strings.NewReader("fresh\n"), &strings.Builder{})
	c := NewChain(env, prompt)

	require.True(t, c.HasSelectedKey(ctx))
	assert.Equal(t, "stale", c.APIKey())

	// the server rejected "stale": selecting again must move on
	require.NoError(t, c.OpenSelectKey(ctx))
	assert.Equal(t, "fresh", c.APIKey())
}

func TestChain_NoSelector(t *testing.T) {
	ctx := context.Background()
	c := NewChain(&staticSelector{})
	assert.False(t, c.HasSelectedKey(ctx))
	assert.ErrorIs(t, c.OpenSelectKey(ctx), ErrNoKey)
	assert.Equal(t, "", c.APIKey())
}
