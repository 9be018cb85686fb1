package matching

import (
	"time"

	"storyline/internal/domain/entity"
)

// Article age tiers and the half-width of the candidate window for each.
const (
	BreakingAge = 24 * time.Hour
	RecentAge   = 7 * 24 * time.Hour

	BreakingHalfWidth = 48 * time.Hour
	RecentHalfWidth   = 7 * 24 * time.Hour
	OldHalfWidth      = 14 * 24 * time.Hour
)

// WindowTimeLayout is the textual timestamp layout used by FormatWindow.
const WindowTimeLayout = time.RFC3339

// HalfWidth returns W for an article of the given age. Tier boundaries belong
// to the wider tier. Future-dated articles (negative age) count as breaking.
func HalfWidth(age time.Duration) time.Duration {
	switch {
	case age < BreakingAge:
		return BreakingHalfWidth
	case age < RecentAge:
		return RecentHalfWidth
	default:
		return OldHalfWidth
	}
}

// WindowFor returns [articleDate-W, articleDate+W] where W depends on the
// article's age at now.
func WindowFor(articleDate, now time.Time) entity.Window {
	w := HalfWidth(now.Sub(articleDate))
	return entity.Window{
		From: articleDate.Add(-w),
		To:   articleDate.Add(w),
	}
}

// IsWithinWindow reports whether candidateDate falls inside the window derived
// from sourceDate. Both ends are inclusive.
func IsWithinWindow(sourceDate, candidateDate, now time.Time) bool {
	return WindowFor(sourceDate, now).Contains(candidateDate)
}

// FormatWindow renders the window bounds as UTC RFC 3339 strings for query
// interfaces that expect textual timestamps.
func FormatWindow(w entity.Window) (from, to string) {
	return w.From.UTC().Format(WindowTimeLayout), w.To.UTC().Format(WindowTimeLayout)
}
