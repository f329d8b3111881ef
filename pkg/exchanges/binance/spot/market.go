package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trading-engine/pkg/exchanges/common"
)

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Status  string `json:"status"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			TickSize    string `json:"tickSize"`
			MinPrice    string `json:"minPrice"`
			StepSize    string `json:"stepSize"`
			MinQty      string `json:"minQty"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// ExchangeInfo fetches the venue's per-symbol filter rules.
func (c *Client) ExchangeInfo(ctx context.Context) (*common.ExchangeRules, error) {
	body, err := c.doPublic(ctx, "/api/v3/exchangeInfo")
	if err != nil {
		return nil, err
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}

	rules := &common.ExchangeRules{
		Symbols:   make(map[string]common.SymbolRules, len(resp.Symbols)),
		FetchedAt: time.Now(),
	}
	for _, s := range resp.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		r := common.SymbolRules{Symbol: s.Symbol}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				r.TickSize = parseDecimal(f.TickSize)
				r.MinPrice = parseDecimal(f.MinPrice)
			case "LOT_SIZE":
				r.StepSize = parseDecimal(f.StepSize)
				r.MinQty = parseDecimal(f.MinQty)
			case "NOTIONAL", "MIN_NOTIONAL":
				r.MinNotional = parseDecimal(f.MinNotional)
			}
		}
		rules.Symbols[s.Symbol] = r
	}
	return rules, nil
}

// Prices returns the latest price for every symbol.
func (c *Client) Prices(ctx context.Context) (map[string]decimal.Decimal, error) {
	body, err := c.doPublic(ctx, "/api/v3/ticker/price")
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(resp))
	for _, p := range resp {
		prices[p.Symbol] = parseDecimal(p.Price)
	}
	return prices, nil
}
