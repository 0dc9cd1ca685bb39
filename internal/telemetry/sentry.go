// Package telemetry reports errors to Sentry. Reporting is opt-in.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/maia-sdr/spectrometerd/internal/buildinfo"
	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/errors"
	"github.com/maia-sdr/spectrometerd/internal/logger"
)

var initialized atomic.Bool

// InitSentry initializes the Sentry SDK and routes enhanced errors to it.
// It does nothing unless error reporting is enabled in settings.
func InitSentry(settings *conf.Settings, info *buildinfo.Context) error {
	return initSentry(settings, info, nil)
}

// initSentry allows tests to inject a transport.
func initSentry(settings *conf.Settings, info *buildinfo.Context, transport sentry.Transport) error {
	log := getLogger()
	s := &settings.Telemetry.Sentry
	if !s.Enabled {
		log.Info("Sentry telemetry is disabled (opt-in required)")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              s.DSN,
		SampleRate:       s.SampleRate,
		Environment:      s.Environment,
		Release:          info.Release(),
		AttachStacktrace: false,
		ServerName:       "",
		Transport:        transport,
		BeforeSend:       applyPrivacyFilters,
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("instance_id", info.InstanceID)
		scope.SetTag("instance_name", settings.Main.Name)
		scope.SetTag("hardware_mode", settings.Hardware.Mode)
		scope.SetContext("build", map[string]any{
			"version":    info.Version,
			"build_date": info.BuildDate,
			"go_version": info.GoVersion,
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)

	log.Info("Sentry telemetry initialized",
		logger.String("environment", s.Environment),
		logger.String("release", info.Release()))
	return nil
}

// Flush waits up to timeout for queued events to be sent. It returns true
// when reporting is disabled.
func Flush(timeout time.Duration) bool {
	if !initialized.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// Shutdown detaches the error reporter and flushes pending events.
func Shutdown(timeout time.Duration) {
	if !initialized.CompareAndSwap(true, false) {
		return
	}
	errors.SetTelemetryReporter(nil)
	if !sentry.Flush(timeout) {
		getLogger().Warn("Sentry flush timed out", logger.Duration("timeout", timeout))
	}
}

// applyPrivacyFilters strips host identifying data from an event.
func applyPrivacyFilters(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

func getLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
