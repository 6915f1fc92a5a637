package gigachat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	refreshMargin   = 60 * time.Second
	exchangeTimeout = 10 * time.Second
	retryBackoff    = 500 * time.Millisecond
)

// TokenState is the lifecycle position of the cached access token
type TokenState int

const (
	TokenExpired TokenState = iota
	TokenValid
	TokenRefreshing
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenRefreshing:
		return "refreshing"
	default:
		return "expired"
	}
}

// TokenSource caches an OAuth access token and refreshes it on demand.
// Concurrent callers that find the token missing or inside the safety
// margin share a single exchange.
type TokenSource struct {
	authURL string
	authKey string
	scope   string
	client  *http.Client

	margin  time.Duration
	timeout time.Duration
	backoff time.Duration
	now     func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	token      string
	expiresAt  time.Time
	refreshing bool
}

// NewTokenSource creates a token source for the client-credential exchange
func NewTokenSource(authURL, authKey, scope string, client *http.Client) *TokenSource {
	return &TokenSource{
		authURL: authURL,
		authKey: authKey,
		scope:   scope,
		client:  client,
		margin:  refreshMargin,
		timeout: exchangeTimeout,
		backoff: retryBackoff,
		now:     time.Now,
	}
}

// State reports the current lifecycle state
func (s *TokenSource) State() TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.refreshing:
		return TokenRefreshing
	case s.validLocked():
		return TokenValid
	default:
		return TokenExpired
	}
}

func (s *TokenSource) validLocked() bool {
	return s.token != "" && s.now().Add(s.margin).Before(s.expiresAt)
}

// Token returns a valid access token, exchanging credentials when needed
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.validLocked() {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	// the exchange outlives any single caller; each caller waits on its own ctx
	ch := s.group.DoChan("token", func() (any, error) {
		s.mu.Lock()
		if s.validLocked() {
			token := s.token
			s.mu.Unlock()
			return token, nil
		}
		s.refreshing = true
		s.mu.Unlock()

		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		token, expiresAt, err := s.exchange(exCtx)

		s.mu.Lock()
		s.refreshing = false
		if err == nil {
			s.token = token
			s.expiresAt = expiresAt
		}
		s.mu.Unlock()

		return token, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token if it is still the one that was
// rejected, so the next call forces a fresh exchange.
func (s *TokenSource) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == token {
		s.token = ""
		s.expiresAt = time.Time{}
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// ExpiresAt is a unix timestamp in milliseconds
	ExpiresAt int64 `json:"expires_at"`
}

// exchange performs the token request, retrying once after a 5xx
func (s *TokenSource) exchange(ctx context.Context) (string, time.Time, error) {
	token, expiresAt, status, err := s.exchangeOnce(ctx)
	if err != nil && status >= http.StatusInternalServerError {
		log.Warn().Err(err).Int("status", status).Msg("GigaChat token exchange failed, retrying")

		select {
		case <-time.After(s.backoff):
		case <-ctx.Done():
			return "", time.Time{}, &domain.AuthError{Provider: "gigachat", Status: status, Err: ctx.Err()}
		}
		token, expiresAt, _, err = s.exchangeOnce(ctx)
	}
	return token, expiresAt, err
}

func (s *TokenSource) exchangeOnce(ctx context.Context) (string, time.Time, int, error) {
	form := url.Values{"scope": {s.scope}}

	req, err := http.NewRequestWithContext(ctx, "POST", s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+s.authKey)
	req.Header.Set("RqUID", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", time.Time{}, 0, &domain.AuthError{Provider: "gigachat", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", time.Time{}, resp.StatusCode, &domain.AuthError{Provider: "gigachat", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, resp.StatusCode, &domain.AuthError{
			Provider: "gigachat",
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", time.Time{}, resp.StatusCode, &domain.AuthError{
			Provider: "gigachat",
			Status:   resp.StatusCode,
			Body:     "malformed token response",
		}
	}

	return tr.AccessToken, time.UnixMilli(tr.ExpiresAt), resp.StatusCode, nil
}
