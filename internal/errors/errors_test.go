package errors

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	ee := New(NewStd("boom")).Build()

	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Equal(t, "boom", ee.Error())
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuilderFields(t *testing.T) {
	base := NewStd("out of range")
	ee := New(base).
		Component("ipcore").
		Category(CategoryValidation).
		Priority(PriorityLow).
		Context("integrations_exp", 40).
		Build()

	assert.Equal(t, "ipcore", ee.Component)
	assert.Equal(t, CategoryValidation, ee.Category)
	assert.Equal(t, PriorityLow, ee.Priority)
	assert.Equal(t, 40, ee.GetContext()["integrations_exp"])
	assert.True(t, Is(ee, base))
	assert.True(t, IsCategory(ee, CategoryValidation))
	assert.Equal(t, CategoryValidation, CategoryOf(fmt.Errorf("wrapped: %w", ee)))
	assert.Equal(t, CategoryGeneric, CategoryOf(base))
}

func TestPriorityFallback(t *testing.T) {
	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestCategorySentinelMatching(t *testing.T) {
	hardware := New(nil).Category(CategoryHardware).Build()
	err := fmt.Errorf("loop: %w", New(NewStd("read failed")).Category(CategoryHardware).Build())

	assert.True(t, Is(err, hardware))
	assert.False(t, Is(err, New(nil).Category(CategoryNetwork).Build()))
}

func TestGetContextIsCopy(t *testing.T) {
	ee := New(NewStd("x")).Context("k", 1).Build()
	ctx := ee.GetContext()
	ctx["k"] = 2
	assert.Equal(t, 1, ee.GetContext()["k"])
}

type countingReporter struct {
	count atomic.Int32
}

func (r *countingReporter) ReportError(ee *EnhancedError) {
	r.count.Add(1)
	ee.MarkReported()
}

func (r *countingReporter) IsEnabled() bool { return true }

func TestTelemetryReporter(t *testing.T) {
	r := &countingReporter{}
	SetTelemetryReporter(r)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("irq lost")).Category(CategoryInterrupt).Build()
	require.True(t, ee.IsReported())
	assert.Equal(t, int32(1), r.count.Load())

	SetTelemetryReporter(nil)
	_ = New(NewStd("quiet")).Build()
	assert.Equal(t, int32(1), r.count.Load())
}

func TestSentryReporterSkipsClientErrors(t *testing.T) {
	sr := NewSentryReporter(true)
	ee := New(NewStd("bad value")).Category(CategoryValidation).Build()
	sr.ReportError(ee)
	assert.False(t, ee.IsReported())

	disabled := NewSentryReporter(false)
	assert.False(t, disabled.IsEnabled())
}
