package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hls-live/internal/session"
)

// Retry defaults for HTTPKicker.
const (
	DefaultKickAttempts = 3
	DefaultKickInterval = 500 * time.Millisecond
)

// HTTPKicker drops ingest connections through the SRS HTTP API
// (DELETE /api/v1/clients/{id}).
type HTTPKicker struct {
	baseURL  string
	token    string
	client   *http.Client
	log      *slog.Logger
	attempts int
	interval time.Duration
}

// NewHTTPKicker returns a kicker for the API at baseURL. token, when set, is
// sent as a bearer token. A nil client uses a client with a 5 second timeout.
func NewHTTPKicker(baseURL, token string, client *http.Client, log *slog.Logger) *HTTPKicker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPKicker{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    strings.TrimSpace(token),
		client:   client,
		log:      log,
		attempts: DefaultKickAttempts,
		interval: DefaultKickInterval,
	}
}

// WithRetry overrides the number of attempts and the pause between them.
func (k *HTTPKicker) WithRetry(attempts int, interval time.Duration) *HTTPKicker {
	k.attempts = max(1, attempts)
	k.interval = max(0, interval)
	return k
}

// Kick asks the ingest server to close the connection id. A client the server
// no longer knows counts as kicked.
func (k *HTTPKicker) Kick(ctx context.Context, id session.ID) error {
	if id == "" {
		return errors.New("empty session id")
	}
	target := k.baseURL + "/api/v1/clients/" + url.PathEscape(string(id))

	var lastErr error
	for attempt := 1; attempt <= k.attempts; attempt++ {
		lastErr = k.do(ctx, target)
		if lastErr == nil {
			return nil
		}
		if attempt == k.attempts {
			break
		}
		k.log.Warn("kick request failed",
			slog.String("session_id", string(id)),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(k.interval):
		}
	}
	return fmt.Errorf("kick %s: %w", id, lastErr)
}

// srsResponse is the envelope every SRS API reply carries; code 0 is success.
type srsResponse struct {
	Code int `json:"code"`
}

func (k *HTTPKicker) do(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	if k.token != "" {
		req.Header.Set("Authorization", "Bearer "+k.token)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var body srsResponse
	if len(data) > 0 && json.Unmarshal(data, &body) == nil && body.Code != 0 {
		return fmt.Errorf("ingest API returned code %d", body.Code)
	}
	return nil
}
