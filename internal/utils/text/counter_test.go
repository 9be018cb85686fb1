package text_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"storyline/internal/utils/text"
)

func TestCountRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"ASCII text", "hello world", 11},
		{"Japanese kanji", "日本語", 3},
		{"mixed", "hello世界", 7},
		{"emoji", "Hello👋", 6},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, text.CountRunes(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"shorter than limit", "storm hits", 20, "storm hits"},
		{"exact limit", "storm", 5, "storm"},
		{"no limit", "storm hits the coast", 0, "storm hits the coast"},
		{"cuts at word boundary", "storm hits the coastline", 20, "storm hits the"},
		{"mid-word when no space near", "abcdefghijklmnopqrstuvwxyz", 10, "abcdefghij"},
		{"multibyte safe", "日本語のニュース記事", 4, "日本語の"},
		{"trailing space trimmed", "storm hits ", 10, "storm hits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := text.Truncate(tt.input, tt.max)
			assert.Equal(t, tt.want, got)
			if tt.max > 0 {
				assert.LessOrEqual(t, text.CountRunes(got), tt.max)
			}
		})
	}
}

func TestTruncate_LongBody(t *testing.T) {
	body := strings.Repeat("word ", 5000)
	got := text.Truncate(body, 8000)
	assert.LessOrEqual(t, text.CountRunes(got), 8000)
	assert.True(t, strings.HasSuffix(got, "word"))
}
