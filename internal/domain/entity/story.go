package entity

import "time"

// MaxTrackedStories bounds the total number of stories a user can follow.
const MaxTrackedStories = 1000

// Story is a user-tracked topic thread. It is created when the user follows an
// article and grows as matching articles are attached to it.
type Story struct {
	ID           int64
	Title        string
	CreatedAt    time.Time
	LastViewedAt time.Time
}

// StoryMember is an article attached to a story.
// AddedAt is the time the article joined the story and drives unread state.
type StoryMember struct {
	StoryID int64
	Article *Article
	AddedAt time.Time
}

// IsUnread reports whether the member arrived after the story was last viewed.
func (m StoryMember) IsUnread(lastViewedAt time.Time) bool {
	return m.AddedAt.After(lastViewedAt)
}

// StoryWithUnread is a story together with its derived listing counters.
type StoryWithUnread struct {
	Story             Story
	ArticleCount      int
	UnreadCount       int
	LatestPublishedAt time.Time
	// Perspectives are the distinct bias categories among the members.
	Perspectives []int
}
