package tracker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trading-engine/internal/events"
	"trading-engine/pkg/exchanges/common"
)

// rawExecutionReport mirrors the venue's executionReport payload. Fields
// are decoded explicitly at this boundary; nothing downstream touches raw
// JSON.
type rawExecutionReport struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	Symbol          string `json:"s"`
	ClientOrderID   string `json:"c"`
	Side            string `json:"S"`
	OrderType       string `json:"o"`
	Status          string `json:"X"`
	ExecutionType   string `json:"x"`
	OrderID         int64  `json:"i"`
	Price           string `json:"p"`
	LastQty         string `json:"l"`
	LastPrice       string `json:"L"`
	CumBase         string `json:"z"`
	CumQuote        string `json:"Z"`
	TradeTime       int64  `json:"T"`
	OrigClientOrder string `json:"C"`
}

// decodeExecutionReport validates and converts a raw executionReport.
func decodeExecutionReport(msg []byte) (events.ExecutionReport, error) {
	var raw rawExecutionReport
	if err := json.Unmarshal(msg, &raw); err != nil {
		return events.ExecutionReport{}, fmt.Errorf("tracker: parse execution report: %w", err)
	}

	rep := events.ExecutionReport{
		Symbol:        raw.Symbol,
		Side:          common.Side(raw.Side),
		OrderType:     common.OrderType(raw.OrderType),
		Status:        common.OrderStatus(raw.Status),
		ClientOrderID: raw.ClientOrderID,
		ExchangeID:    raw.OrderID,
		TradeTime:     time.UnixMilli(raw.TradeTime),
	}

	// On cancels the venue moves the original id to C and puts the
	// cancel request's id in c; correlation follows the original.
	if raw.OrigClientOrder != "" && rep.Status == common.StatusCanceled {
		rep.ClientOrderID = raw.OrigClientOrder
	}

	var err error
	if rep.Price, err = parseReportDecimal(raw.Price); err != nil {
		return events.ExecutionReport{}, fmt.Errorf("tracker: report price %q: %w", raw.Price, err)
	}
	if rep.LastQty, err = parseReportDecimal(raw.LastQty); err != nil {
		return events.ExecutionReport{}, fmt.Errorf("tracker: report last qty %q: %w", raw.LastQty, err)
	}
	if rep.LastPrice, err = parseReportDecimal(raw.LastPrice); err != nil {
		return events.ExecutionReport{}, fmt.Errorf("tracker: report last price %q: %w", raw.LastPrice, err)
	}
	if rep.CumBase, err = parseReportDecimal(raw.CumBase); err != nil {
		return events.ExecutionReport{}, fmt.Errorf("tracker: report cumulative base %q: %w", raw.CumBase, err)
	}
	if rep.CumQuote, err = parseReportDecimal(raw.CumQuote); err != nil {
		return events.ExecutionReport{}, fmt.Errorf("tracker: report cumulative quote %q: %w", raw.CumQuote, err)
	}
	return rep, nil
}

func parseReportDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
