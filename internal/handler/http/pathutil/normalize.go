package pathutil

import (
	"regexp"
	"strings"
)

type pathPattern struct {
	pattern  *regexp.Regexp
	template string
}

// Most specific first.
var pathPatterns = []pathPattern{
	{regexp.MustCompile(`^/stories/\d+/articles$`), "/stories/:id/articles"},
	{regexp.MustCompile(`^/stories/\d+/viewed$`), "/stories/:id/viewed"},
	{regexp.MustCompile(`^/stories/\d+$`), "/stories/:id"},
}

// staticPaths are the routes without parameters.
var staticPaths = map[string]bool{
	"/stories":      true,
	"/matching/run": true,
	"/health":       true,
	"/ready":        true,
	"/live":         true,
	"/metrics":      true,
}

// UnmatchedPath labels requests that match no known route.
const UnmatchedPath = "unmatched"

// NormalizePath maps a request path to its route template so that metric
// labels stay bounded:
//
//	NormalizePath("/stories/42/articles") // "/stories/:id/articles"
//	NormalizePath("/stories/7?x=1")       // "/stories/:id"
//	NormalizePath("/stories/")            // "/stories"
//	NormalizePath("/wp-admin.php")        // "unmatched"
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if staticPaths[path] {
		return path
	}
	for _, p := range pathPatterns {
		if p.pattern.MatchString(path) {
			return p.template
		}
	}
	return UnmatchedPath
}

// ExpectedCardinality is the number of distinct labels NormalizePath can
// return.
func ExpectedCardinality() int {
	return len(pathPatterns) + len(staticPaths) + 1
}
