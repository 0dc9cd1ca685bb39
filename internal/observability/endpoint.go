// Package observability provides Prometheus metrics functionality for monitoring spectrometerd.
// Sentry error reporting is handled in the telemetry package.
package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	metricspkg "github.com/maia-sdr/spectrometerd/internal/observability/metrics"
)

// Endpoint serves the Prometheus registry and, optionally, pprof.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	debug         bool
	metrics       *Metrics

	mu       sync.Mutex
	listener net.Listener
}

// NewEndpoint creates a telemetry Endpoint from the Prometheus settings.
// It returns an error if the endpoint is disabled in the settings.
//
// The function does not create new metrics but uses the provided Metrics
// instance.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Prometheus.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}

	return &Endpoint{
		listenAddress: settings.Telemetry.Prometheus.Listen,
		debug:         settings.Telemetry.Prometheus.Debug,
		metrics:       metrics,
	}, nil
}

// Run serves the endpoint until ctx is cancelled, then shuts the server down
// within metrics.ShutdownTimeout.
func (e *Endpoint) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)
	if e.debug {
		RegisterDebugHandlers(mux)
	}

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("telemetry endpoint listen on %s: %w", e.listenAddress, err)
	}
	e.mu.Lock()
	e.listener = ln
	e.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		getLogger().Info("Telemetry endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			getLogger().Error("Telemetry HTTP server error", logger.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	getLogger().Info("Stopping telemetry server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		getLogger().Error("Telemetry server shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// Addr returns the bound address once Run is listening, or nil.
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
