package opensky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yegors/skyfetch/pkg/logger"
)

// tokenSafetyMargin is how close to expiry a cached token may get before the
// next caller triggers a refresh.
const tokenSafetyMargin = 60 * time.Second

// exchangeRetryDelay is the pause before the provider's single internal
// retry of an unreachable token endpoint.
const exchangeRetryDelay = 500 * time.Millisecond

// TokenProvider obtains and caches an OAuth bearer token for the OpenSky
// API. It is safe for concurrent use: callers racing on an expired cache
// collapse into a single outstanding exchange and all receive its result.
type TokenProvider struct {
	authURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *logger.Logger

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenProvider creates a new token provider
func NewTokenProvider(authURL, clientID, clientSecret string, timeout time.Duration, logger *logger.Logger) *TokenProvider {
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	return &TokenProvider{
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("opensky-token"),
	}
}

// Token returns a bearer token valid for at least the safety margin. It hits
// the network only when no such token is cached.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		// A waiter queued behind a finished refresh must not trigger
		// another exchange.
		if token, ok := p.cached(); ok {
			return token, nil
		}
		return p.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next caller forces a fresh
// exchange. Used after the API rejects a token mid-run.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiry = time.Time{}
	p.mu.Unlock()

	p.logger.Debug("Cached token invalidated")
}

func (p *TokenProvider) cached() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Until(p.expiry) > tokenSafetyMargin {
		return p.token, true
	}
	return "", false
}

// exchange performs the client-credentials exchange with one internal retry
// for network failures. Rejections are not retried.
func (p *TokenProvider) exchange(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		token, err := p.exchangeOnce(ctx)
		if err == nil {
			return token, nil
		}

		var authErr *AuthError
		if errors.As(err, &authErr) && authErr.StatusCode != 0 {
			return "", err
		}
		lastErr = err

		if attempt < 2 {
			p.logger.Warn("Token endpoint unreachable, retrying",
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(exchangeRetryDelay):
			}
		}
	}
	return "", &AuthError{Err: lastErr}
}

func (p *TokenProvider) exchangeOnce(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p.logger.Debug("Requesting new OAuth token")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", &AuthError{Err: errors.New("token response missing access_token")}
	}

	// OpenSky tokens default to one hour if the response omits expires_in
	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	p.mu.Lock()
	p.token = tokenResp.AccessToken
	p.expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	p.mu.Unlock()

	p.logger.Debug("OAuth token obtained",
		logger.Int64("expires_in_seconds", expiresIn),
	)

	return tokenResp.AccessToken, nil
}
