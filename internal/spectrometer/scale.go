package spectrometer

import "math"

// BaseScale makes the decoded values positive when expressed in dB.
const BaseScale float32 = 4e6

// Scale returns the factor applied to every decoded magnitude:
//
//	BaseScale / (2^integrationsExp * sampleRate)
//
// A zero sample rate gives +Inf, which is what the loop publishes until the
// sample rate becomes known.
func Scale(integrationsExp uint8, sampleRate float32) float32 {
	numIntegrations := float32(math.Ldexp(1, int(integrationsExp)))
	return BaseScale / (numIntegrations * sampleRate)
}

// OutputRate returns the spectrum rate in spectra per second for a given
// input sample rate, FFT size and integrations exponent.
func OutputRate(sampleRate float64, fftSize int, integrationsExp uint8) float64 {
	return sampleRate / (float64(fftSize) * math.Ldexp(1, int(integrationsExp)))
}
