// Package cmc provides a client for the CoinMarketCap listings API.
package cmc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/clientdata"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/retry"
)

const defaultBaseURL = "https://pro-api.coinmarketcap.com"

// CMC error codes that indicate a rejected or exhausted API key.
const (
	codeInvalidKey  = 1001
	codeKeyDisabled = 1002
)

// Config holds CoinMarketCap client configuration
type Config struct {
	BaseURL string
	APIKey  string
}

// Client for the CoinMarketCap pro API
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	retry     *retry.Policy
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewClient creates a new CoinMarketCap client.
// cacheRepo is optional - if nil, listings caching is disabled.
func NewClient(cfg Config, cacheRepo *clientdata.Repository, policy *retry.Policy, log zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		client:    &http.Client{Timeout: 15 * time.Second},
		retry:     policy,
		cacheRepo: cacheRepo,
		log:       log.With().Str("client", "coinmarketcap").Logger(),
	}
}

// APIError is an error response from the CoinMarketCap API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coinmarketcap API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Transient reports whether the error is worth retrying.
func (e *APIError) Transient() bool {
	if e.Code == codeInvalidKey || e.Code == codeKeyDisabled {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// GetTopRanked returns the top-N asset symbols by market cap, best first.
// Results are cached in client_data.db for an hour.
func (c *Client) GetTopRanked(ctx context.Context, limit int) ([]string, error) {
	cacheKey := "top:" + strconv.Itoa(limit)

	if c.cacheRepo != nil {
		var cached []string
		ok, err := c.cacheRepo.GetIfFresh("cmc_listings", cacheKey, &cached)
		if err == nil && ok {
			c.log.Debug().Int("symbols", len(cached)).Msg("Listings cache hit")
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "market_cap")

	var result struct {
		Data []struct {
			Symbol  string `json:"symbol"`
			CmcRank int    `json:"cmc_rank"`
		} `json:"data"`
	}

	err := c.retry.Do(ctx, "GET /v1/cryptocurrency/listings/latest", func() error {
		err := c.request(ctx, "/v1/cryptocurrency/listings/latest", params, &result)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Transient() {
			return retry.Permanent(classify(apiErr))
		}
		return err
	})
	if err != nil {
		return nil, &domain.DataSourceError{Source: "coinmarketcap", Op: "get top listings", Err: err}
	}

	symbols := make([]string, 0, len(result.Data))
	for _, d := range result.Data {
		symbols = append(symbols, d.Symbol)
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("cmc_listings", cacheKey, symbols, clientdata.TTLCMCListings); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache listings")
		}
	}

	c.log.Debug().Int("symbols", len(symbols)).Msg("Fetched top listings")
	return symbols, nil
}

// Ping verifies connectivity and credential validity with a minimal request.
func (c *Client) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("limit", "1")

	var result json.RawMessage
	err := c.request(ctx, "/v1/cryptocurrency/listings/latest", params, &result)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			err = classify(apiErr)
		}
		return fmt.Errorf("coinmarketcap connectivity check failed: %w", err)
	}
	return nil
}

// classify maps credential-rejection codes onto the domain error type.
func classify(apiErr *APIError) error {
	switch apiErr.Code {
	case codeInvalidKey, codeKeyDisabled:
		return &domain.InvalidCredentialsError{Source: "coinmarketcap", Code: apiErr.Code}
	}
	return apiErr
}

func (c *Client) request(ctx context.Context, path string, params url.Values, dest interface{}) error {
	reqURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var parsed struct {
			Status struct {
				ErrorCode    int    `json:"error_code"`
				ErrorMessage string `json:"error_message"`
			} `json:"status"`
		}
		if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr == nil {
			apiErr.Code = parsed.Status.ErrorCode
			apiErr.Message = parsed.Status.ErrorMessage
		} else {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if dest != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, dest); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}
