package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adwski/roomsdk/sdk/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			assert.Equal(t, "Bearer u:h", r.Header.Get("Authorization"))
			assert.NotEmpty(t, r.Header.Get(headerRequestID))
			var in map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(in)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := NewClient(Config{Logger: &logger, BaseURL: srv.URL + "/"})
	ctx := context.Background()

	var out map[string]string
	err := c.Do(ctx, http.MethodPost, "/echo", &model.Credentials{UUID: "u", HMAC: "h"}, map[string]string{"a": "b"}, &out)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "b"}, out)

	assert.ErrorIs(t, c.Do(ctx, http.MethodGet, "/missing", nil, nil, nil), ErrNotFound)

	err = c.Do(ctx, http.MethodGet, "/other", nil, nil, nil)
	assert.ErrorIs(t, err, ErrResponse)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/organization-subdomains/a%2Fb", Path("organization-subdomains", "a/b"))
}
