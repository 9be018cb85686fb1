package story

import (
	"time"

	"storyline/internal/domain/entity"
)

// DTO is a tracked story in listings.
type DTO struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	CreatedAt         time.Time  `json:"created_at"`
	LastViewedAt      time.Time  `json:"last_viewed_at"`
	ArticleCount      int        `json:"article_count"`
	UnreadCount       int        `json:"unread_count"`
	LatestPublishedAt *time.Time `json:"latest_published_at,omitempty"`
	Perspectives      []int      `json:"perspectives"`
}

// ArticleDTO is a story member.
type ArticleDTO struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	SourceName  string    `json:"source_name"`
	PublishedAt time.Time `json:"published_at"`
	Bias        *int      `json:"bias"`
	AddedAt     time.Time `json:"added_at"`
}

func toDTO(s entity.StoryWithUnread) DTO {
	dto := DTO{
		ID:           s.Story.ID,
		Title:        s.Story.Title,
		CreatedAt:    s.Story.CreatedAt,
		LastViewedAt: s.Story.LastViewedAt,
		ArticleCount: s.ArticleCount,
		UnreadCount:  s.UnreadCount,
		Perspectives: s.Perspectives,
	}
	if !s.LatestPublishedAt.IsZero() {
		latest := s.LatestPublishedAt
		dto.LatestPublishedAt = &latest
	}
	if dto.Perspectives == nil {
		dto.Perspectives = []int{}
	}
	return dto
}

func storyDTO(s *entity.Story) DTO {
	return DTO{
		ID:           s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		LastViewedAt: s.LastViewedAt,
		ArticleCount: 1,
		Perspectives: []int{},
	}
}

func toArticleDTO(m entity.StoryMember) ArticleDTO {
	a := m.Article
	return ArticleDTO{
		ID:          a.ID,
		URL:         a.URL,
		Title:       a.Title,
		SourceName:  a.SourceName,
		PublishedAt: a.PublishedAt,
		Bias:        a.Bias,
		AddedAt:     m.AddedAt,
	}
}
