package tracker

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamClient is the slice of the exchange client the stream needs.
type StreamClient interface {
	CreateListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context, listenKey string) error
	CloseListenKey(ctx context.Context, listenKey string) error
	StreamURL(listenKey string) string
}

const (
	keepAliveInterval = 30 * time.Minute
	reconnectDelay    = 5 * time.Second
)

// Stream owns one long-lived user-data-stream connection and feeds every
// message to the tracker in arrival order. Messages for one stream are
// processed one at a time; independent streams run as independent
// Streams.
type Stream struct {
	client  StreamClient
	tracker *Tracker
	logger  *zap.Logger
}

// NewStream creates a Stream.
func NewStream(client StreamClient, tracker *Tracker, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{client: client, tracker: tracker, logger: logger}
}

// Run consumes the stream until ctx is done, reconnecting on failure.
func (s *Stream) Run(ctx context.Context) {
	for {
		if err := s.runOnce(ctx); err != nil {
			s.logger.Warn("user stream disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) runOnce(ctx context.Context) error {
	listenKey, err := s.client.CreateListenKey(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.CloseListenKey(closeCtx, listenKey); err != nil {
			s.logger.Debug("close listen key failed", zap.Error(err))
		}
	}()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.client.StreamURL(listenKey), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.logger.Info("user stream connected")

	// Listen keys expire after 60 minutes without a keepalive.
	keepAliveCtx, stopKeepAlive := context.WithCancel(ctx)
	defer stopKeepAlive()
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-keepAliveCtx.Done():
				return
			case <-ticker.C:
				if err := s.client.KeepAliveListenKey(keepAliveCtx, listenKey); err != nil {
					s.logger.Warn("listen key keepalive failed", zap.Error(err))
				}
			}
		}
	}()

	// Unblock ReadMessage when ctx ends.
	go func() {
		<-keepAliveCtx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.tracker.ProcessMessage(ctx, msg)
	}
}
