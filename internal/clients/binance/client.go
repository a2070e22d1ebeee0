// Package binance provides a REST client for the Binance spot API.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/clientdata"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/retry"
)

const defaultBaseURL = "https://api.binance.com"

// Binance error codes that indicate rejected credentials. These are never
// retried: the keys will not become valid on the next attempt.
const (
	codeInvalidAPIKeyFormat = -2014
	codeRejectedMBXKey      = -2015
	codeInvalidSignature    = -1022
)

// Config holds Binance client configuration
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// Client for the Binance spot REST API
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	retry     *retry.Policy
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
	now       func() time.Time
}

// NewClient creates a new Binance client.
// cacheRepo is optional - if nil, exchange-info caching is disabled.
func NewClient(cfg Config, cacheRepo *clientdata.Repository, policy *retry.Policy, log zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		client:    &http.Client{Timeout: 15 * time.Second},
		retry:     policy,
		cacheRepo: cacheRepo,
		log:       log.With().Str("client", "binance").Logger(),
		now:       time.Now,
	}
}

// APIError is an error response from the Binance API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Transient reports whether the error is worth retrying. Rate limits (429),
// IP bans (418) and server errors are transient; everything else is not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusTeapot ||
		e.StatusCode >= 500
}

// GetBalances returns all assets with a positive free or locked quantity.
func (c *Client) GetBalances(ctx context.Context) ([]domain.AssetBalance, error) {
	var result struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}

	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true, &result); err != nil {
		return nil, &domain.DataSourceError{Source: "binance", Op: "get account balances", Err: err}
	}

	balances := make([]domain.AssetBalance, 0, len(result.Balances))
	for _, b := range result.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("failed to parse free balance for %s: %w", b.Asset, err)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, fmt.Errorf("failed to parse locked balance for %s: %w", b.Asset, err)
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, domain.AssetBalance{Asset: b.Asset, Free: free, Locked: locked})
	}

	c.log.Debug().Int("assets", len(balances)).Msg("Fetched account balances")
	return balances, nil
}

// GetAllPrices returns last prices for every symbol on the exchange.
func (c *Client) GetAllPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	var result []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", nil, false, &result); err != nil {
		return nil, &domain.DataSourceError{Source: "binance", Op: "get ticker prices", Err: err}
	}

	prices := make(map[string]decimal.Decimal, len(result))
	for _, t := range result {
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price for %s: %w", t.Symbol, err)
		}
		prices[t.Symbol] = price
	}

	c.log.Debug().Int("symbols", len(prices)).Msg("Fetched ticker prices")
	return prices, nil
}

// GetSymbolRules returns the trading constraints for the given symbols.
// Results are cached in client_data.db; symbols unknown to the exchange are
// absent from the returned map.
func (c *Client) GetSymbolRules(ctx context.Context, symbols []string) (map[string]domain.SymbolRule, error) {
	if len(symbols) == 0 {
		return map[string]domain.SymbolRule{}, nil
	}

	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	cacheKey := strings.Join(sorted, ",")

	if c.cacheRepo != nil {
		var cached map[string]domain.SymbolRule
		ok, err := c.cacheRepo.GetIfFresh("exchange_info", cacheKey, &cached)
		if err == nil && ok {
			c.log.Debug().Int("symbols", len(cached)).Msg("Exchange info cache hit")
			return cached, nil
		}
	}

	// Binance expects a JSON array literal in the symbols query parameter
	symbolsJSON, err := json.Marshal(sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to encode symbols parameter: %w", err)
	}
	params := url.Values{}
	params.Set("symbols", string(symbolsJSON))

	var result struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize"`
				MinQty      string `json:"minQty"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}

	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, &result); err != nil {
		return nil, &domain.DataSourceError{Source: "binance", Op: "get exchange info", Err: err}
	}

	rules := make(map[string]domain.SymbolRule, len(result.Symbols))
	for _, s := range result.Symbols {
		rule := domain.SymbolRule{Symbol: s.Symbol}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				if rule.StepSize, err = decimal.NewFromString(f.StepSize); err != nil {
					return nil, fmt.Errorf("failed to parse stepSize for %s: %w", s.Symbol, err)
				}
				if rule.MinQty, err = decimal.NewFromString(f.MinQty); err != nil {
					return nil, fmt.Errorf("failed to parse minQty for %s: %w", s.Symbol, err)
				}
			case "NOTIONAL", "MIN_NOTIONAL":
				if rule.MinNotional, err = decimal.NewFromString(f.MinNotional); err != nil {
					return nil, fmt.Errorf("failed to parse minNotional for %s: %w", s.Symbol, err)
				}
			}
		}
		rules[s.Symbol] = rule
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("exchange_info", cacheKey, rules, clientdata.TTLExchangeInfo); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache exchange info")
		}
	}

	c.log.Debug().Int("symbols", len(rules)).Msg("Fetched exchange info")
	return rules, nil
}

// CreateMarketOrder places a MARKET order and returns the exchange order id.
func (c *Client) CreateMarketOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity decimal.Decimal) (string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", quantity.String())

	var result struct {
		OrderID int64  `json:"orderId"`
		Status  string `json:"status"`
	}

	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true, &result); err != nil {
		return "", fmt.Errorf("failed to create %s order for %s: %w", side, symbol, err)
	}

	c.log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("quantity", quantity.String()).
		Int64("order_id", result.OrderID).
		Str("status", result.Status).
		Msg("Order placed")

	return strconv.FormatInt(result.OrderID, 10), nil
}

// TestMarketOrder submits the order to the validation endpoint. The exchange
// checks parameters and balances but places nothing.
func (c *Client) TestMarketOrder(ctx context.Context, symbol string, side domain.TradeSide, quantity decimal.Decimal) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", quantity.String())

	var result json.RawMessage
	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/order/test", params, true, &result); err != nil {
		return fmt.Errorf("failed to test %s order for %s: %w", side, symbol, err)
	}
	return nil
}

// Ping verifies connectivity and credential validity by fetching the account.
func (c *Client) Ping(ctx context.Context) error {
	var result json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", nil, true, &result); err != nil {
		return fmt.Errorf("binance connectivity check failed: %w", err)
	}
	return nil
}

// doRequest executes one API call under the retry policy. Credential errors
// and client-side rejections are marked permanent so the policy aborts
// immediately.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool, dest interface{}) error {
	op := method + " " + path
	return c.retry.Do(ctx, op, func() error {
		err := c.request(ctx, method, path, params, signed, dest)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Transient() {
			return retry.Permanent(classify(apiErr))
		}
		return err
	})
}

// classify maps credential-rejection codes onto the domain error type.
func classify(apiErr *APIError) error {
	switch apiErr.Code {
	case codeInvalidAPIKeyFormat, codeRejectedMBXKey, codeInvalidSignature:
		return &domain.InvalidCredentialsError{Source: "binance", Code: apiErr.Code}
	}
	return apiErr
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, signed bool, dest interface{}) error {
	if params == nil {
		params = url.Values{}
	}

	if signed {
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		params.Set("signature", c.sign(params.Encode()))
	}

	reqURL := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if encoded := params.Encode(); encoded != "" {
			reqURL += "?" + encoded
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

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
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr == nil {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Msg
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

// sign computes the HMAC-SHA256 signature over the query string.
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
