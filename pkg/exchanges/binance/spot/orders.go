package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"trading-engine/pkg/exchanges/common"
)

type orderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	CumQuoteQty   string `json:"cummulativeQuoteQty"`
}

// SubmitOrder places a single order. The response is requested in FULL
// form so synchronous fills (FOK, market) report executed quantities
// without waiting for the user stream.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Qty.String())
	params.Set("newOrderRespType", "FULL")

	switch req.Type {
	case common.OrderTypeLimit:
		params.Set("price", req.Price.String())
		params.Set("timeInForce", string(tifOrDefault(req.TimeInForce)))
	case common.OrderTypeStopLossLimit:
		params.Set("price", req.Price.String())
		params.Set("stopPrice", req.StopPrice.String())
		params.Set("timeInForce", string(tifOrDefault(req.TimeInForce)))
	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		params.Set("stopPrice", req.StopPrice.String())
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order response: %w", err)
	}
	return common.OrderResult{
		ExchangeOrderID: fmt.Sprintf("%d", resp.OrderID),
		ClientID:        resp.ClientOrderID,
		Status:          mapStatus(resp.Status),
		ExecutedQty:     parseDecimal(resp.ExecutedQty),
		CumQuoteQty:     parseDecimal(resp.CumQuoteQty),
	}, nil
}

// SubmitOCO places a native one-cancels-the-other pair: a take-profit
// limit leg and a stop-loss-limit leg.
func (c *Client) SubmitOCO(ctx context.Context, req common.OCORequest) (common.OCOResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("quantity", req.Qty.String())
	params.Set("price", req.TakeProfitPrice.String())
	params.Set("stopPrice", req.StopPrice.String())
	params.Set("stopLimitPrice", req.StopLimitPrice.String())
	params.Set("stopLimitTimeInForce", string(common.TIFGTC))
	if req.TakeProfitID != "" {
		params.Set("limitClientOrderId", req.TakeProfitID)
	}
	if req.StopID != "" {
		params.Set("stopClientOrderId", req.StopID)
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order/oco", params)
	if err != nil {
		return common.OCOResult{}, err
	}

	var resp struct {
		OrderListID int64 `json:"orderListId"`
		Orders      []struct {
			ClientOrderID string `json:"clientOrderId"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OCOResult{}, fmt.Errorf("decode oco response: %w", err)
	}
	res := common.OCOResult{
		ListID:       fmt.Sprintf("%d", resp.OrderListID),
		TakeProfitID: req.TakeProfitID,
		StopID:       req.StopID,
	}
	return res, nil
}

// CancelOrder cancels a single order by its client order id.
func (c *Client) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)
	_, err := c.doSigned(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

// CancelOCO cancels a whole order list; the venue cancels both legs.
func (c *Client) CancelOCO(ctx context.Context, symbol, listID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderListId", listID)
	_, err := c.doSigned(ctx, http.MethodDelete, "/api/v3/orderList", params)
	return err
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

func tifOrDefault(tif common.TimeInForce) common.TimeInForce {
	if tif == "" {
		return common.TIFGTC
	}
	return tif
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
