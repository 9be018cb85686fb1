package entity

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validArticle() *Article {
	return &Article{
		ID:          1,
		URL:         "https://news.example.com/2025/01/01/story",
		Title:       "Storm hits the coast",
		SourceName:  "Example News",
		PublishedAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestArticle_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(a *Article)
		wantField string
	}{
		{"valid", func(a *Article) {}, ""},
		{"valid with bias", func(a *Article) { a.Bias = BiasPtr(2) }, ""},
		{"missing url", func(a *Article) { a.URL = "" }, "url"},
		{"ftp url", func(a *Article) { a.URL = "ftp://example.com/x" }, "url"},
		{"blank title", func(a *Article) { a.Title = "   " }, "title"},
		{"zero published_at", func(a *Article) { a.PublishedAt = time.Time{} }, "published_at"},
		{"bias out of range", func(a *Article) { a.Bias = BiasPtr(-1) }, "bias"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validArticle()
			tt.mutate(a)
			err := a.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestArticle_EmbeddingText(t *testing.T) {
	a := validArticle()
	assert.Equal(t, "Storm hits the coast", a.EmbeddingText())

	a.Body = "Winds reached 120km/h."
	assert.Equal(t, "Storm hits the coast\n\nWinds reached 120km/h.", a.EmbeddingText())

	a.Body = strings.Repeat("gale ", 4000)
	got := a.EmbeddingText()
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxEmbeddingRunes)
	assert.True(t, strings.HasPrefix(got, "Storm hits the coast\n\ngale"))
}

func TestArticleEmbedding_Validate(t *testing.T) {
	valid := func() *ArticleEmbedding {
		return &ArticleEmbedding{ArticleID: 10, Model: "m", Dimension: 3, Vector: []float32{1, 2, 3}}
	}

	assert.NoError(t, valid().Validate())

	e := valid()
	e.ArticleID = 0
	var vErr *ValidationError
	assert.ErrorAs(t, e.Validate(), &vErr)

	e = valid()
	e.Vector = nil
	assert.ErrorIs(t, e.Validate(), ErrEmptyEmbedding)

	e = valid()
	e.Dimension = 4
	assert.ErrorIs(t, e.Validate(), ErrInvalidEmbeddingDimension)
}

func TestMatchStrength_String(t *testing.T) {
	assert.Equal(t, "STRONG", MatchStrong.String())
	assert.Equal(t, "WEAK", MatchWeak.String())
	assert.Equal(t, "NONE", MatchNone.String())

	text, err := MatchWeak.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "WEAK", string(text))
}

func TestWindow_Contains(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := Window{From: from, To: from.Add(96 * time.Hour)}

	assert.True(t, w.Contains(from), "lower bound is inclusive")
	assert.True(t, w.Contains(w.To), "upper bound is inclusive")
	assert.True(t, w.Contains(from.Add(time.Hour)))
	assert.False(t, w.Contains(from.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.To.Add(time.Nanosecond)))
	assert.Equal(t, 96*time.Hour, w.Width())
}

func TestStoryMember_IsUnread(t *testing.T) {
	viewed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, StoryMember{AddedAt: viewed}.IsUnread(viewed), "equal timestamps are read")
	assert.False(t, StoryMember{AddedAt: viewed.Add(-time.Second)}.IsUnread(viewed))
	assert.True(t, StoryMember{AddedAt: viewed.Add(time.Second)}.IsUnread(viewed))
}

func TestQuotaSnapshot(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	q := UnknownQuota()
	assert.False(t, q.IsRateLimited(now))
	assert.False(t, q.RemainingKnown())

	q.RateLimitedUntil = now.Add(time.Minute)
	q.Remaining = 0
	assert.True(t, q.IsRateLimited(now))
	assert.False(t, q.IsRateLimited(now.Add(time.Minute)), "limit expires at the deadline")
	assert.True(t, q.RemainingKnown())
}

func TestSource_Validate(t *testing.T) {
	s := &Source{Name: "Wire", FeedURL: "https://wire.example.com/rss", Bias: BiasPtr(1)}
	assert.NoError(t, s.Validate())

	s.Name = ""
	assert.True(t, errors.Is(s.Validate(), ErrValidationFailed))
}
