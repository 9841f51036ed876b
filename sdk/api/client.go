// Package api is a small JSON client for the room service HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adwski/roomsdk/sdk/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 1 << 20

	headerRequestID = "X-Request-Id"
)

var (
	ErrRequest  = errors.New("api request failed")
	ErrResponse = errors.New("unexpected api response")
	ErrNotFound = errors.New("api resource not found")
)

type (
	Config struct {
		Logger     *zerolog.Logger
		BaseURL    string
		HTTPClient *http.Client
	}

	Client struct {
		logger  zerolog.Logger
		baseURL string
		http    *http.Client
	}
)

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		logger:  cfg.Logger.With().Str("component", "api-client").Logger(),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    hc,
	}
}

// Do sends in as the JSON body (when non-nil) and decodes the response into
// out (when non-nil). Requests carrying creds are signed with the device
// credentials.
func (c *Client) Do(ctx context.Context, method, path string, creds *model.Credentials, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Join(ErrRequest, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	reqID := uuid.NewString()
	req.Header.Set(headerRequestID, reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds != nil {
		req.Header.Set("Authorization", "Bearer "+creds.UUID+":"+creds.HMAC)
	}

	logger := c.logger.With().Str("method", method).Str("path", path).Str("requestID", reqID).Logger()
	logger.Trace().Msg("api request")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return errors.Join(ErrResponse, err)
	}
	logger.Debug().Int("status", resp.StatusCode).Msg("api response")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Join(ErrResponse, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err = json.Unmarshal(raw, out); err != nil {
		return errors.Join(ErrResponse, err)
	}
	return nil
}

// Path joins escaped path segments.
func Path(segments ...string) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}
	return sb.String()
}
