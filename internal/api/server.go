// Package api is the thin HTTP command surface over the execution
// engine. No business logic lives here; requests map to engine calls and
// engine results map to HTTP codes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-engine/internal/engine"
	"trading-engine/internal/sizing"
)

// Server wires HTTP endpoints around the execution engine.
type Server struct {
	Router *gin.Engine
	Engine *engine.Engine
	Token  string
	Logger *zap.Logger
}

// NewServer builds the router. token guards every command route; an
// empty token disables auth (local use only).
func NewServer(eng *engine.Engine, token string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{Router: r, Engine: eng, Token: token, Logger: logger}

	r.GET("/health", s.health)

	api := r.Group("/api", s.requireToken)
	{
		api.POST("/orders/open", s.openPosition)
		api.POST("/orders/close", s.closePosition)
		api.GET("/prices", s.getPrices)
		api.GET("/positions", s.getPositions)
	}
	return s
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requireToken(c *gin.Context) {
	if s.Token != "" && c.GetHeader("X-API-Token") != s.Token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Next()
}

type intentRequest struct {
	Edge         string `json:"edge" binding:"required"`
	Base         string `json:"base" binding:"required"`
	Quote        string `json:"quote" binding:"required"`
	Direction    string `json:"direction"`
	TriggerPrice string `json:"trigger_price"`
}

func (r intentRequest) toIntent(action engine.Action) (engine.TradeIntent, error) {
	intent := engine.TradeIntent{
		Edge:       r.Edge,
		Base:       r.Base,
		Quote:      r.Quote,
		Direction:  sizing.DirectionLong,
		Action:     action,
		SignalTime: time.Now(),
	}
	if r.Direction == string(sizing.DirectionShort) {
		intent.Direction = sizing.DirectionShort
	}
	if r.TriggerPrice != "" {
		p, err := decimal.NewFromString(r.TriggerPrice)
		if err != nil {
			return engine.TradeIntent{}, err
		}
		intent.TriggerPrice = p
	}
	return intent, nil
}

func (s *Server) openPosition(c *gin.Context) {
	s.command(c, engine.ActionOpen, s.Engine.Open)
}

func (s *Server) closePosition(c *gin.Context) {
	s.command(c, engine.ActionClose, s.Engine.Close)
}

func (s *Server) command(c *gin.Context, action engine.Action, run func(context.Context, engine.TradeIntent) engine.Result) {
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	intent, err := req.toIntent(action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := run(c.Request.Context(), intent)
	c.JSON(httpStatus(result.Status), resultBody(result))
}

func (s *Server) getPrices(c *gin.Context) {
	prices, err := s.Engine.Prices(c.Request.Context())
	if err != nil {
		s.Logger.Error("prices fetch failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "prices unavailable"})
		return
	}
	out := make(map[string]string, len(prices))
	for sym, p := range prices {
		out[sym] = p.String()
	}
	c.JSON(http.StatusOK, gin.H{"prices": out})
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.Engine.Positions(c.Request.Context())
	if err != nil {
		s.Logger.Error("positions fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "positions unavailable"})
		return
	}
	out := make([]gin.H, 0, len(positions))
	for _, p := range positions {
		out = append(out, gin.H{
			"symbol":    p.Symbol,
			"edge":      p.Edge,
			"direction": string(p.Direction),
			"base_qty":  p.BaseQty.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func resultBody(r engine.Result) gin.H {
	body := gin.H{
		"status": string(r.Status),
		"edge":   r.Edge,
		"base":   r.Base,
		"quote":  r.Quote,
	}
	if r.TradeID != "" {
		body["trade_id"] = r.TradeID
	}
	if !r.Executed.IsZero() {
		body["executed"] = r.Executed.String()
	}
	if !r.AvgPrice.IsZero() {
		body["avg_price"] = r.AvgPrice.String()
	}
	if r.Exits != (engine.ExitOrders{}) {
		exits := gin.H{
			"take_profit_order_id": r.Exits.TakeProfitID,
			"stop_order_id":        r.Exits.StopID,
		}
		if r.Exits.ListID != "" {
			exits["oco_list_id"] = r.Exits.ListID
		}
		body["exits"] = exits
	}
	if r.RetryAfter > 0 {
		body["retry_after_seconds"] = int(r.RetryAfter.Seconds())
	}
	return body
}

func httpStatus(s engine.Status) int {
	switch s {
	case engine.StatusSuccess:
		return http.StatusOK
	case engine.StatusEntryFailedToFill, engine.StatusAlreadyInPosition:
		return http.StatusConflict
	case engine.StatusUnauthorised:
		return http.StatusForbidden
	case engine.StatusAssetProhibited, engine.StatusInsufficientBalance, engine.StatusBadInputs:
		return http.StatusUnprocessableEntity
	case engine.StatusTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
