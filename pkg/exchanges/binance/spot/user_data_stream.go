package spot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// CreateListenKey creates a new user data stream listen key.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	body, err := c.doListenKey(ctx, http.MethodPost, "")
	if err != nil {
		return "", err
	}
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.ListenKey, nil
}

// KeepAliveListenKey extends the validity of a listen key.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	_, err := c.doListenKey(ctx, http.MethodPut, listenKey)
	return err
}

// CloseListenKey closes a user data stream.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	_, err := c.doListenKey(ctx, http.MethodDelete, listenKey)
	return err
}

// StreamURL returns the websocket URL for a listen key.
func (c *Client) StreamURL(listenKey string) string {
	host := "stream.binance.com:9443"
	if c.cfg.Testnet {
		host = "testnet.binance.vision"
	}
	u := url.URL{Scheme: "wss", Host: host, Path: "/ws/" + listenKey}
	return u.String()
}

// doListenKey hits the userDataStream endpoint. Listen-key calls are
// API-key authenticated but unsigned.
func (c *Client) doListenKey(ctx context.Context, method, listenKey string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("binance: API key required")
	}

	endpoint := c.baseURL + "/api/v3/userDataStream"
	if listenKey != "" {
		params := url.Values{}
		params.Set("listenKey", listenKey)
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listen key %s status %d", method, res.StatusCode)
	}

	body, _ := io.ReadAll(res.Body)
	return body, nil
}
