package errors

import (
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every built error while reporting is active
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu sync.RWMutex
	reporter   TelemetryReporter
)

// SetTelemetryReporter installs reporter. Passing nil disables reporting.
func SetTelemetryReporter(r TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
	hasActiveReporting.Store(r != nil && r.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()

	if r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

// SentryReporter forwards errors to Sentry. Client errors are not reported.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a Sentry reporter; sentry.Init must already
// have been called.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() || ee.Category == CategoryValidation {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		title := fmt.Sprintf("%s %s", ee.Component, ee.Category)
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for key, value := range ee.Context {
			scope.SetContext(key, map[string]any{"value": value})
		}
		level := sentryLevel(ee)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Level = level
		event.Message = ee.Error()
		event.Exception = []sentry.Exception{{Type: title, Value: ee.Error()}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func sentryLevel(ee *EnhancedError) sentry.Level {
	if ee.Priority == PriorityCritical {
		return sentry.LevelFatal
	}
	switch ee.Category {
	case CategoryHardware, CategoryInterrupt, CategoryConfiguration:
		return sentry.LevelError
	case CategoryNetwork, CategoryMQTTConnection, CategoryMQTTPublish, CategoryHTTP:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
