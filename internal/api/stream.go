package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/maia-sdr/spectrometerd/internal/broadcast"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/observability/metrics"
)

// streamSpectra upgrades to a WebSocket and sends every published spectrum
// as one binary message. Each connection is its own broadcast receiver, so a
// slow client lags and skips spectra without affecting the others.
func (s *Server) streamSpectra(c echo.Context) error {
	if !s.config.StreamEnabled {
		return echo.ErrNotFound
	}

	s.streams.Add(1)
	defer s.streams.Done()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied to the client
		s.log.Debug("WebSocket upgrade failed", logger.Error(err))
		return nil
	}

	clientID := uuid.NewString()
	log := s.log.With(logger.String("client_id", clientID), logger.String("remote", c.RealIP()))

	rx := s.channel.Subscribe()
	s.metrics.ConsumerConnected(metrics.ConsumerWebSocket)
	log.Info("Spectrum stream client connected")

	ctx, cancel := context.WithCancel(c.Request().Context())
	var wg sync.WaitGroup
	wg.Go(func() { readPump(conn, cancel) })
	wg.Go(func() { pingLoop(ctx, conn, s.config.StreamWriteTimeout) })

	var skippedTotal uint64
	err = broadcast.Consume(ctx, rx, func(payload []byte) error {
		if err := conn.SetWriteDeadline(time.Now().Add(s.config.StreamWriteTimeout)); err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			s.metrics.Dropped(metrics.ConsumerWebSocket, "write_error")
			return err
		}
		s.metrics.Delivered(metrics.ConsumerWebSocket, len(payload))
		return nil
	}, func(skipped uint64) {
		skippedTotal += skipped
		s.metrics.Lagged(metrics.ConsumerWebSocket, skipped)
		log.Debug("Spectrum stream client lagged", logger.Uint64("skipped", skipped))
	})

	cancel()
	rx.Close()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	_ = conn.Close()
	wg.Wait()

	s.metrics.ConsumerDisconnected(metrics.ConsumerWebSocket)
	fields := []logger.Field{logger.Uint64("skipped", skippedTotal)}
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		fields = append(fields, logger.Error(err))
	}
	log.Info("Spectrum stream client disconnected", fields...)
	return nil
}

// readPump handles control frames and notices the client going away. It
// returns when the connection is closed.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// clients have nothing to say, anything they send is discarded
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pingLoop keeps idle connections alive while no spectra are flowing.
func pingLoop(ctx context.Context, conn *websocket.Conn, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
