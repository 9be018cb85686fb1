// Package headline collapses near-duplicate headlines in a freshly fetched
// batch before the articles are stored. It works on title tokens only and
// needs no embeddings.
package headline

import (
	"strings"
)

// DuplicateThreshold is the Jaccard similarity that two titles must exceed to
// be treated as the same headline.
const DuplicateThreshold = 0.20

var stopWords = map[string]struct{}{
	"video":     {},
	"live":      {},
	"update":    {},
	"new":       {},
	"watch":     {},
	"photos":    {},
	"exclusive": {},
}

// Normalize lowercases title, removes every character outside [a-z0-9 ],
// splits on whitespace and drops stop words.
func Normalize(title string) map[string]struct{} {
	lower := strings.ToLower(title)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}

	fields := strings.Fields(b.String())
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// IsDuplicate reports whether two titles are the same headline.
func IsDuplicate(a, b string) bool {
	return Jaccard(Normalize(a), Normalize(b)) > DuplicateThreshold
}

// Cluster is a group of items whose titles matched the first item's title.
type Cluster[T any] struct {
	Members []T
	tokens  map[string]struct{}
}

// Representative returns the first-seen member.
func (c Cluster[T]) Representative() T {
	return c.Members[0]
}

// Group runs a single greedy pass over items. Each item is compared with the
// first member of every existing cluster, in cluster creation order, and joins
// the first one it duplicates; otherwise it starts a new cluster.
//
// The result depends on input order and is not transitive: when A~B and B~C
// but A≁C, C starts its own cluster even though it matched B.
func Group[T any](items []T, title func(T) string) []Cluster[T] {
	var clusters []Cluster[T]
	for _, item := range items {
		tokens := Normalize(title(item))

		joined := false
		for i := range clusters {
			if Jaccard(tokens, clusters[i].tokens) > DuplicateThreshold {
				clusters[i].Members = append(clusters[i].Members, item)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, Cluster[T]{Members: []T{item}, tokens: tokens})
		}
	}
	return clusters
}

// Representatives collapses items to one per cluster, keeping input order.
func Representatives[T any](items []T, title func(T) string) []T {
	clusters := Group(items, title)
	out := make([]T, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c.Representative())
	}
	return out
}
