// Package fixtures provides reusable test data builders for the story
// tracker's tests: articles, embeddings and predictable vectors.
package fixtures

import (
	"fmt"
	"strings"
	"time"

	"storyline/internal/domain/entity"
)

// BaseTime is the fixed reference instant used by fixtures.
var BaseTime = time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

// ArticleOption is a functional option for customizing test articles.
type ArticleOption func(*entity.Article)

// NewTestArticle creates a valid Article with sensible defaults.
//
// Example:
//
//	a := NewTestArticle(WithArticleURL("https://news.example.com/a"), WithBias(2))
func NewTestArticle(opts ...ArticleOption) *entity.Article {
	a := &entity.Article{
		ID:          1,
		URL:         "https://news.example.com/articles/1",
		Title:       "Central bank raises interest rates",
		Body:        GenerateBody(300),
		SourceName:  "Example Wire",
		PublishedAt: BaseTime,
		CreatedAt:   BaseTime,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewTestArticles creates n distinct articles with IDs 1..n, published one
// hour apart starting at BaseTime.
func NewTestArticles(n int, opts ...ArticleOption) []*entity.Article {
	out := make([]*entity.Article, 0, n)
	for i := 1; i <= n; i++ {
		base := []ArticleOption{
			WithID(int64(i)),
			WithArticleURL(fmt.Sprintf("https://news.example.com/articles/%d", i)),
			WithTitle(fmt.Sprintf("Headline number %d", i)),
			WithPublishedAt(BaseTime.Add(time.Duration(i-1) * time.Hour)),
		}
		out = append(out, NewTestArticle(append(base, opts...)...))
	}
	return out
}

// WithID sets the ID of the article.
func WithID(id int64) ArticleOption {
	return func(a *entity.Article) { a.ID = id }
}

// WithArticleURL sets the canonical URL.
func WithArticleURL(url string) ArticleOption {
	return func(a *entity.Article) { a.URL = url }
}

// WithTitle sets the title.
func WithTitle(title string) ArticleOption {
	return func(a *entity.Article) { a.Title = title }
}

// WithBody sets the body text.
func WithBody(body string) ArticleOption {
	return func(a *entity.Article) { a.Body = body }
}

// WithSource sets the source name.
func WithSource(name string) ArticleOption {
	return func(a *entity.Article) { a.SourceName = name }
}

// WithPublishedAt sets the publication time.
func WithPublishedAt(t time.Time) ArticleOption {
	return func(a *entity.Article) { a.PublishedAt = t }
}

// WithBias sets the bias category.
func WithBias(b int) ArticleOption {
	return func(a *entity.Article) { a.Bias = entity.BiasPtr(b) }
}

// WithoutBias marks the article as unscored.
func WithoutBias() ArticleOption {
	return func(a *entity.Article) { a.Bias = nil }
}

// GenerateBody returns deterministic English news copy of roughly
// targetLength characters.
func GenerateBody(targetLength int) string {
	sentences := []string{
		"Officials confirmed the decision late on Monday.",
		"Markets reacted within minutes of the announcement.",
		"Analysts expect further changes over the coming weeks.",
		"Opposition leaders criticised the timing of the move.",
		"The agency said more details would follow.",
		"Regional outlets reported mixed reactions from residents.",
		"Several experts questioned the underlying data.",
	}

	var b strings.Builder
	for i := 0; b.Len() < targetLength; i++ {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(sentences[i%len(sentences)])
	}
	return b.String()
}
