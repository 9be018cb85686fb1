package respond

import "regexp"

var (
	// Matches OpenAI-style keys but not an already masked "sk-****".
	apiKeyPattern     = regexp.MustCompile(`sk-[a-zA-Z0-9_-]{10,}`)
	bearerPattern     = regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]+`)
	dbPasswordPattern = regexp.MustCompile(`://([^:/@]+):([^@]+)@`)
)

// SanitizeError returns err's message with API keys, bearer tokens and DSN
// passwords masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = apiKeyPattern.ReplaceAllString(msg, "sk-****")
	msg = bearerPattern.ReplaceAllString(msg, "Bearer ****")
	msg = dbPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	return msg
}
