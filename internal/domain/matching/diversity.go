package matching

import (
	"sort"

	"storyline/internal/domain/entity"
)

// HasNewPerspective reports whether candidate carries a bias category that none
// of the story's members has. An unscored candidate never does.
func HasNewPerspective(members []*entity.Article, candidate *entity.Article) bool {
	if candidate == nil || candidate.Bias == nil {
		return false
	}
	for _, m := range members {
		if m != nil && m.Bias != nil && *m.Bias == *candidate.Bias {
			return false
		}
	}
	return true
}

// Perspectives returns the distinct bias categories present among members in
// ascending order.
func Perspectives(members []*entity.Article) []int {
	seen := make(map[int]struct{})
	for _, m := range members {
		if m != nil && m.Bias != nil {
			seen[*m.Bias] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}
