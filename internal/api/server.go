package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/maia-sdr/spectrometerd/internal/api/middleware"
	"github.com/maia-sdr/spectrometerd/internal/broadcast"
	"github.com/maia-sdr/spectrometerd/internal/buildinfo"
	"github.com/maia-sdr/spectrometerd/internal/errors"
	"github.com/maia-sdr/spectrometerd/internal/frontend"
	"github.com/maia-sdr/spectrometerd/internal/ipcore"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/observability/metrics"
	"github.com/maia-sdr/spectrometerd/internal/spectrometer"
)

// ComponentAPI identifies errors raised by the HTTP server
const ComponentAPI = "api"

// Server is the HTTP control plane.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	// Dependencies
	core       *ipcore.IPCore
	specConfig *spectrometer.Config
	sampleRate frontend.SampleRateSource
	channel    *broadcast.Channel[[]byte]
	metrics    *metrics.StreamMetrics
	build      *buildinfo.Context

	upgrader websocket.Upgrader
	streams  sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithStreamMetrics sets the metrics updated by stream clients.
func WithStreamMetrics(m *metrics.StreamMetrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the build information reported by /health.
func WithBuildInfo(info *buildinfo.Context) ServerOption {
	return func(s *Server) {
		s.build = info
	}
}

// WithLogger overrides the package logger.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// New creates the HTTP server. core, specConfig, sampleRate and channel are
// required.
func New(config *Config, core *ipcore.IPCore, specConfig *spectrometer.Config,
	sampleRate frontend.SampleRateSource, channel *broadcast.Channel[[]byte], opts ...ServerOption,
) (*Server, error) {
	if core == nil || specConfig == nil || sampleRate == nil || channel == nil {
		return nil, errors.Newf("api: missing dependency").
			Component(ComponentAPI).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if config.FFTSize <= 0 {
		return nil, errors.Newf("api: invalid fft size %d", config.FFTSize).
			Component(ComponentAPI).
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:     config,
		core:       core,
		specConfig: specConfig,
		sampleRate: sampleRate,
		channel:    channel,
		startTime:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16384,
			// Clients are instruments on the local network. Access control
			// belongs in front of the daemon.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	if s.build == nil {
		s.build = buildinfo.New()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(s.log))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	g := s.echo.Group("/api/v1/spectrometer")
	g.GET("", s.getSpectrometer)
	g.PATCH("", s.patchSpectrometer)
	g.GET("/kurtosis", s.getKurtosis)
	g.PATCH("/kurtosis", s.patchKurtosis)
	g.GET("/stream", s.streamSpectra)
}

// Handler returns the HTTP handler of the server, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the listening address once Run has started listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves HTTP until ctx is done, then shuts down gracefully. Request
// contexts derive from ctx so that stream connections end with it.
func (s *Server) Run(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.config.Listen)
	if err != nil {
		return errors.New(fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)).
			Component(ComponentAPI).
			Category(errors.CategoryNetwork).
			Context("listen", s.config.Listen).
			Build()
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.echo.Listener = ln
	s.echo.Server.BaseContext = func(net.Listener) context.Context { return ctx }

	s.log.Info("Starting HTTP server",
		logger.String("address", ln.Addr().String()),
		logger.Bool("stream", s.config.StreamEnabled))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.echo.Start("")
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New(fmt.Errorf("server error: %w", err)).
				Component(ComponentAPI).
				Category(errors.CategoryNetwork).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()

	err = s.echo.Shutdown(shutdownCtx)
	<-serveErr
	s.streams.Wait()

	if err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("Server shutdown complete")
	return nil
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.build.Version,
		"build_date":     s.build.BuildDate,
		"instance_id":    s.build.InstanceID,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"receivers":      s.channel.ReceiverCount(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
