package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSources(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSourcesConfig(t *testing.T) {
	path := writeSources(t, `
sources:
  - name: example-wire
    feed_url: https://wire.example.com/rss
    bias: 2
  - name: unscored-daily
    feed_url: https://daily.example.com/feed.xml
`)

	config, err := LoadSourcesConfig(path)
	require.NoError(t, err)
	require.Len(t, config.Sources, 2)

	wire := config.Sources[0]
	assert.Equal(t, "example-wire", wire.Name)
	assert.Equal(t, "https://wire.example.com/rss", wire.FeedURL)
	require.NotNil(t, wire.Bias)
	assert.Equal(t, 2, *wire.Bias)

	assert.Nil(t, config.Sources[1].Bias)
}

func TestLoadSourcesConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid yaml", "sources: [", "failed to parse sources"},
		{"missing name", "sources:\n  - feed_url: https://a.example.com/rss\n", "sources validation failed"},
		{"bad url", "sources:\n  - name: a\n    feed_url: ftp://a.example.com/rss\n", "sources validation failed"},
		{"bias out of range", "sources:\n  - name: a\n    feed_url: https://a.example.com/rss\n    bias: 99\n", "sources validation failed"},
		{"duplicate name", "sources:\n  - name: a\n    feed_url: https://a.example.com/rss\n  - name: a\n    feed_url: https://b.example.com/rss\n", "duplicate source name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSourcesConfig(writeSources(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSourcesConfig_FileNotFound(t *testing.T) {
	_, err := LoadSourcesConfig("/nonexistent/path/sources.yaml")
	assert.Error(t, err)
}

func TestSourcesPath(t *testing.T) {
	t.Setenv("STORYLINE_SOURCES", "")
	assert.Equal(t, DefaultSourcesPath, SourcesPath())

	t.Setenv("STORYLINE_SOURCES", "/etc/storyline/sources.yaml")
	assert.Equal(t, "/etc/storyline/sources.yaml", SourcesPath())
}
