package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/skarvik/accountd/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBodyTestServer() *server {
	return &server{
		log: logrus.New(),
		cfg: &config.Config{
			Server: config.ServerConfig{MaxBodyBytes: 64},
		},
	}
}

func TestReadJSON(t *testing.T) {
	s := newBodyTestServer()

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/",
			strings.NewReader(`{"username":"alice"}`))

		var v struct {
			Username string `json:"username"`
		}

		require.NoError(t, s.readJSON(r, &v))
		assert.Equal(t, "alice", v.Username)
	})

	t.Run("missing content length", func(t *testing.T) {
		// An io.Reader of unknown length leaves ContentLength at -1.
		r := httptest.NewRequest(http.MethodPost, "/",
			io.MultiReader(strings.NewReader(`{}`)))
		require.Equal(t, int64(-1), r.ContentLength)

		var v struct{}

		err := s.readJSON(r, &v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Content-Length")
	})

	t.Run("body exceeds maximum", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), 65)
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(big))

		var v struct{}

		err := s.readJSON(r, &v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})

	t.Run("declared length longer than body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/",
			strings.NewReader(`{}`))
		r.ContentLength = 10

		var v struct{}

		err := s.readJSON(r, &v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match")
	})

	t.Run("invalid json", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/",
			strings.NewReader(`{"username":`))

		var v struct{}

		err := s.readJSON(r, &v)
		require.Error(t, err)

		var ce *clientError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, errInvalidJSON, ce.kind)
	})
}
