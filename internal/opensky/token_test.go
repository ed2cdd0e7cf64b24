package opensky

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/skyfetch/pkg/logger"
)

func tokenServer(t *testing.T, exchanges *atomic.Int64, expiresIn int64, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "test-client", r.FormValue("client_id"))
		assert.Equal(t, "test-secret", r.FormValue("client_secret"))

		if delay > 0 {
			time.Sleep(delay)
		}
		n := exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":%d}`, n, expiresIn)
	}))
}

func TestTokenConcurrentCallersOneExchange(t *testing.T) {
	var exchanges atomic.Int64
	srv := tokenServer(t, &exchanges, 3600, 50*time.Millisecond)
	defer srv.Close()

	provider := NewTokenProvider(srv.URL, "test-client", "test-secret", 5*time.Second, logger.Nop())

	const callers = 50
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := provider.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), exchanges.Load(), "concurrent callers must share one exchange")
	for _, token := range tokens {
		assert.Equal(t, "token-1", token)
	}
}

func TestTokenCachedAcrossCalls(t *testing.T) {
	var exchanges atomic.Int64
	srv := tokenServer(t, &exchanges, 3600, 0)
	defer srv.Close()

	provider := NewTokenProvider(srv.URL, "test-client", "test-secret", 5*time.Second, logger.Nop())
	for i := 0; i < 5; i++ {
		token, err := provider.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
	}
	assert.Equal(t, int64(1), exchanges.Load())
}

func TestTokenInvalidateForcesExchange(t *testing.T) {
	var exchanges atomic.Int64
	srv := tokenServer(t, &exchanges, 3600, 0)
	defer srv.Close()

	provider := NewTokenProvider(srv.URL, "test-client", "test-secret", 5*time.Second, logger.Nop())

	token, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	provider.Invalidate()

	token, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
	assert.Equal(t, int64(2), exchanges.Load())
}

func TestTokenShortExpiryNotCached(t *testing.T) {
	var exchanges atomic.Int64
	// Expiry below the safety margin: the cache never considers it valid.
	srv := tokenServer(t, &exchanges, 30, 0)
	defer srv.Close()

	provider := NewTokenProvider(srv.URL, "test-client", "test-secret", 5*time.Second, logger.Nop())

	_, err := provider.Token(context.Background())
	require.NoError(t, err)
	_, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), exchanges.Load())
}

func TestTokenRejectedCredentials(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := NewTokenProvider(srv.URL, "bad-client", "bad-secret", 5*time.Second, logger.Nop())

	_, err := provider.Token(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, int64(1), requests.Load(), "a rejection must not be retried")
}

func TestTokenEndpointUnreachableRetriedOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	provider := NewTokenProvider(srv.URL, "test-client", "test-secret", time.Second, logger.Nop())

	start := time.Now()
	_, err := provider.Token(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, authErr.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond, "one internal retry after a delay")
}

func TestTokenMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expires_in":3600}`)
	}))
	defer srv.Close()

	provider := NewTokenProvider(srv.URL, "test-client", "test-secret", 5*time.Second, logger.Nop())
	_, err := provider.Token(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}
