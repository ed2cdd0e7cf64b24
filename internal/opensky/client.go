package opensky

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yegors/skyfetch/pkg/logger"
)

// Default OpenSky Network endpoints.
const (
	DefaultAPIBaseURL = "https://opensky-network.org/api"
	DefaultAuthURL    = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"
)

// Client is responsible for fetching flight data from the OpenSky API
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logger.Logger
}

// NewClient creates a new OpenSky API client
func NewClient(baseURL string, timeout time.Duration, logger *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("opensky-client"),
	}
}

// Flights fetches departures or arrivals for one airport over a time window.
// It returns the raw payload alongside the parsed flights so callers can
// persist both. A 404 means the API has no movements for the window and is
// returned as an empty result, not an error.
func (c *Client) Flights(ctx context.Context, kind Kind, airport string, begin, end time.Time, token string) ([]byte, []Flight, error) {
	endpoint := fmt.Sprintf("%s/flights/%s", c.baseURL, kind)
	params := url.Values{}
	params.Set("airport", airport)
	params.Set("begin", strconv.FormatInt(begin.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))
	requestURL := endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.Debug("Fetching flights",
		logger.String("kind", string(kind)),
		logger.String("airport", airport),
		logger.Int64("begin", begin.Unix()),
		logger.Int64("end", end.Unix()),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("No movements recorded for window",
			logger.String("airport", airport),
			logger.String("kind", string(kind)),
		)
		return []byte("[]"), nil, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &APIError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	flights, err := ParseFlights(body)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Debug("Successfully fetched flights",
		logger.String("airport", airport),
		logger.Int("flight_count", len(flights)),
	)

	return body, flights, nil
}
