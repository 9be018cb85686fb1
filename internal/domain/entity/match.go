package entity

// MatchStrength is the tiered classification of a similarity score.
type MatchStrength int

const (
	// MatchNone means the candidate is unrelated to the story.
	MatchNone MatchStrength = iota
	// MatchWeak means the candidate is possibly related and worth a review.
	MatchWeak
	// MatchStrong means the candidate belongs to the story.
	MatchStrong
)

// String returns the upper-case label used in logs and metrics.
func (s MatchStrength) String() string {
	switch s {
	case MatchStrong:
		return "STRONG"
	case MatchWeak:
		return "WEAK"
	default:
		return "NONE"
	}
}

// MarshalText renders the strength label in JSON payloads.
func (s MatchStrength) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MatchOutcome records the decision taken for one candidate article against one
// story during a matching pass. It is emitted, never persisted.
type MatchOutcome struct {
	StoryID        int64         `json:"story_id"`
	ArticleID      int64         `json:"article_id"`
	ArticleURL     string        `json:"article_url"`
	Score          float64       `json:"score"`
	Strength       MatchStrength `json:"strength"`
	Novel          bool          `json:"novel"`
	NewPerspective bool          `json:"new_perspective"`
	// Attached is true when the pass added the article to the story.
	Attached bool `json:"attached"`
}
