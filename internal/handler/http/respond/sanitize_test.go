package respond

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		name  string
		input error
		want  string
	}{
		{"openai key", errors.New("embeddings: invalid key sk-proj-abcdefghij1234567890"), "embeddings: invalid key sk-****"},
		{"bearer token", errors.New("request with Bearer abc.def.ghi rejected"), "request with Bearer **** rejected"},
		{"postgres dsn", errors.New("dial tcp: postgres://story:hunter2@db:5432/storyline"), "dial tcp: postgres://story:****@db:5432/storyline"},
		{"already masked", errors.New("key sk-****"), "key sk-****"},
		{"plain", errors.New("story not found"), "story not found"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeError(tt.input))
		})
	}
}
