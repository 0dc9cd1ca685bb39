package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/maia-sdr/spectrometerd/internal/errors"
	"github.com/maia-sdr/spectrometerd/internal/ipcore"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/spectrometer"
)

// SpectrometerStatus is the body of GET /api/v1/spectrometer.
type SpectrometerStatus struct {
	InputSamplingFrequency  float64 `json:"input_sampling_frequency"`
	OutputSamplingFrequency float64 `json:"output_sampling_frequency"`
	IntegrationsExp         uint8   `json:"integrations_exp"`
	FFTSize                 int     `json:"fft_size"`
}

// PatchSpectrometer is the body of PATCH /api/v1/spectrometer. Omitted
// fields are left unchanged.
type PatchSpectrometer struct {
	IntegrationsExp *int `json:"integrations_exp,omitempty"`
}

// PatchKurtosis is the body of PATCH /api/v1/spectrometer/kurtosis.
type PatchKurtosis struct {
	Kurt1   *int  `json:"kurt_1,omitempty"`
	Kurt2   *int  `json:"kurt_2,omitempty"`
	Enabled *bool `json:"enabled,omitempty"`
}

func (s *Server) getSpectrometer(c echo.Context) error {
	status, err := s.status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) patchSpectrometer(c echo.Context) error {
	var patch PatchSpectrometer
	if err := c.Bind(&patch); err != nil {
		return err
	}

	if patch.IntegrationsExp != nil {
		v, err := checkRange("integrations_exp", *patch.IntegrationsExp, int(ipcore.MaxIntegrationsExp))
		if err != nil {
			return err
		}
		if err := s.core.SetIntegrationsExp(v); err != nil {
			return err
		}
		s.log.Info("Integrations exponent changed", logger.Int("integrations_exp", int(v)))
	}

	return s.getSpectrometer(c)
}

// status reads the front-end sample rate and stores it in the shared Config,
// which is how the acquisition loop learns about sample rate changes.
func (s *Server) status(ctx context.Context) (*SpectrometerStatus, error) {
	rate, err := s.sampleRate.SampleRate(ctx)
	if err != nil {
		return nil, err
	}
	s.specConfig.SetSampleRate(float32(rate))

	exp := s.core.IntegrationsExp()
	return &SpectrometerStatus{
		InputSamplingFrequency:  rate,
		OutputSamplingFrequency: spectrometer.OutputRate(rate, s.config.FFTSize, exp),
		IntegrationsExp:         exp,
		FFTSize:                 s.config.FFTSize,
	}, nil
}

func (s *Server) getKurtosis(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Kurtosis())
}

func (s *Server) patchKurtosis(c echo.Context) error {
	var patch PatchKurtosis
	if err := c.Bind(&patch); err != nil {
		return err
	}

	k := s.core.Kurtosis()
	maxShift := int(ipcore.MaxKurtosisShift)
	if patch.Kurt1 != nil {
		v, err := checkRange("kurt_1", *patch.Kurt1, maxShift)
		if err != nil {
			return err
		}
		k.Shift1 = v
	}
	if patch.Kurt2 != nil {
		v, err := checkRange("kurt_2", *patch.Kurt2, maxShift)
		if err != nil {
			return err
		}
		k.Shift2 = v
	}
	if patch.Enabled != nil {
		k.Enabled = *patch.Enabled
	}

	if err := s.core.SetKurtosis(k); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.core.Kurtosis())
}

// checkRange rejects values outside [0, maxValue] before they are narrowed
// to a register width.
func checkRange(name string, v, maxValue int) (uint8, error) {
	if v < 0 || v > maxValue {
		return 0, errors.New(fmt.Errorf("%s must be between 0 and %d, got %d", name, maxValue, v)).
			Component(ComponentAPI).
			Category(errors.CategoryValidation).
			Context("field", name).
			Build()
	}
	return uint8(v), nil //nolint:gosec // G115: range checked above
}
