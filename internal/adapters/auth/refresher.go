// Package auth renews the session credential against the control plane.
package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/dkeye/intercom/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StatusError is a non-2xx reauth response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("reauth: status %d", e.Code)
	}
	return fmt.Sprintf("reauth: status %d: %s", e.Code, e.Body)
}

// Is reports a 500 as core.ErrExpectedTransient: the server answers 500
// while the previous token is still valid.
func (e *StatusError) Is(target error) bool {
	return target == core.ErrExpectedTransient && e.Code == http.StatusInternalServerError
}

type HTTPRefresher struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

type Option func(*HTTPRefresher)

func WithHTTPClient(c *http.Client) Option {
	return func(r *HTTPRefresher) { r.client = c }
}

// NewHTTPRefresher posts to url on every refresh. The default client keeps
// a cookie jar so the renewed credential is carried by later requests.
func NewHTTPRefresher(url string, opts ...Option) *HTTPRefresher {
	jar, _ := cookiejar.New(nil)
	r := &HTTPRefresher{
		url:    url,
		client: &http.Client{Jar: jar, Timeout: 10 * time.Second},
		log:    log.With().Str("module", "adapters.auth").Logger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *HTTPRefresher) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, nil)
	if err != nil {
		return fmt.Errorf("reauth: build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("reauth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	r.log.Debug().Int("status", resp.StatusCode).Msg("credential renewed")
	return nil
}
