// Package spot is a signed Binance spot REST client covering the
// endpoints the trading engine needs: exchange info, order placement
// (including OCO), cancellation, prices and user-data-stream keys.
package spot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trading-engine/pkg/exchanges/common"
)

// Config holds Binance credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
	BaseURL    string // override for tests
	Logger     *zap.Logger
}

// Client is a Binance spot trading client.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	timeSync   *common.TimeSync
	limiter    *rate.Limiter
	usage      *common.UsageTracker
	logger     *zap.Logger
}

// New creates a Client. Testnet flips the base URL; BaseURL overrides both.
func New(cfg Config) *Client {
	base := "https://api.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binance.vision"
	}
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Spot allows 1200 weight/min; stay comfortably under with a
		// 10 rps pre-send throttle and header-driven usage tracking.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		usage:   common.NewUsageTracker(1200, time.Minute, logger),
		logger:  logger,
	}
	client.timeSync = common.NewTimeSync(client.GetServerTime, logger)
	return client
}

// StartTimeSync begins periodic clock sync against the venue.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

func (c *Client) timestamp() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

// apiError is Binance's error envelope.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// mapError turns an HTTP failure into a typed error when recognizable.
func mapError(status int, retryAfter string, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	if status == http.StatusTooManyRequests || status == 418 || ae.Code == -1003 {
		var wait time.Duration
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			wait = time.Duration(secs) * time.Second
		}
		return &common.TooManyRequestsError{RetryAfter: wait}
	}

	msg := strings.ToLower(ae.Msg)
	switch {
	case strings.Contains(msg, "insufficient balance"):
		return fmt.Errorf("binance code %d: %s: %w", ae.Code, ae.Msg, common.ErrInsufficientBalance)
	case strings.Contains(msg, "not permitted"), strings.Contains(msg, "prohibited"):
		return fmt.Errorf("binance code %d: %s: %w", ae.Code, ae.Msg, common.ErrTradingProhibited)
	case ae.Code == -2013, strings.Contains(msg, "unknown order"):
		return fmt.Errorf("binance code %d: %s: %w", ae.Code, ae.Msg, common.ErrOrderNotFound)
	}
	return fmt.Errorf("binance status %d code %d: %s", status, ae.Code, ae.Msg)
}

// doSigned signs the query and performs the HTTP request.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, fmt.Errorf("binance: API key/secret required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("timestamp", strconv.FormatInt(c.timestamp(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	// The signature covers the payload exactly as sent, so it goes last.
	payload := params.Encode()
	encoded := payload + "&signature=" + sign(payload, c.cfg.APISecret)

	endpoint := c.baseURL + path
	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		// Binance expects signed params in the query string for GET/DELETE.
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.usage.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, mapError(res.StatusCode, res.Header.Get("Retry-After"), body)
	}
	return body, nil
}

// doPublic performs an unsigned request against a public endpoint.
func (c *Client) doPublic(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.usage.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, mapError(res.StatusCode, res.Header.Get("Retry-After"), body)
	}
	return body, nil
}

// GetServerTime fetches server time (ms).
func (c *Client) GetServerTime() (int64, error) {
	body, err := c.doPublic(context.Background(), "/api/v3/time")
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
