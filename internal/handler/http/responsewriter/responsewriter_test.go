package responsewriter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Defaults(t *testing.T) {
	rw := Wrap(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rw.StatusCode())
	assert.Zero(t, rw.BytesWritten())
	assert.False(t, rw.Written())
}

func TestWrap_Idempotent(t *testing.T) {
	rw := Wrap(httptest.NewRecorder())
	assert.Same(t, rw, Wrap(rw))
}

func TestWriteHeader_FirstWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := Wrap(rec)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusNotFound, rw.StatusCode())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWrite_CountsBytesAndImplies200(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := Wrap(rec)

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = rw.Write([]byte(" world"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, 11, rw.BytesWritten())
	assert.True(t, rw.Written())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
}

func TestFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := Wrap(rec)
	rw.Flush()
	assert.True(t, rec.Flushed)
	assert.True(t, rw.Written())
}

func TestUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.Equal(t, http.ResponseWriter(rec), Wrap(rec).Unwrap())
}
