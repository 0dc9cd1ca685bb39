package spectrometer

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

const (
	// MantissaBits is the width of the mantissa in a hardware spectrum word.
	MantissaBits = 56

	mantissaMask = uint64(1)<<MantissaBits - 1

	// BytesPerBin is the size of one decoded bin.
	BytesPerBin = 4
)

// OverflowPolicy selects what happens when mantissa << 2*exponent does not
// fit in 64 bits.
type OverflowPolicy int

const (
	// OverflowWiden computes the magnitude without an integer intermediate.
	// Results match the 64-bit shift whenever it does not overflow; larger
	// magnitudes keep their value and may become +Inf in float32.
	OverflowWiden OverflowPolicy = iota

	// OverflowWrap keeps the low 64 bits of the shift. Shifts of 64 or more
	// yield zero. This matches the reference decoder only for exponents up
	// to 31; above that it computes the shift count in 8 bits and masks it to
	// 6 bits, which is not reproduced.
	OverflowWrap

	// OverflowSaturate clamps overflowing magnitudes to 2^64-1.
	OverflowSaturate
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowWiden:
		return "widen"
	case OverflowWrap:
		return "wrap"
	case OverflowSaturate:
		return "saturate"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy parses "widen", "wrap" or "saturate".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "widen":
		return OverflowWiden, nil
	case "wrap":
		return OverflowWrap, nil
	case "saturate":
		return OverflowSaturate, nil
	default:
		return OverflowWiden, fmt.Errorf("unknown overflow policy %q, expected widen, wrap or saturate", s)
	}
}

// Decoder converts hardware spectrum words into float32 bins.
//
// Each word carries an 8-bit exponent in its most significant byte and a
// 56-bit mantissa below it. The exponent counts powers of 4, so the
// magnitude is mantissa << (2*exponent).
type Decoder struct {
	Overflow OverflowPolicy
}

// Decode converts buffer using the default (widening) decoder.
func Decode(buffer []uint64, scale float32) []byte {
	return Decoder{}.Decode(buffer, scale)
}

// Decode returns 4*len(buffer) bytes: one native-endian float32 per word,
// equal to the word's magnitude times scale.
func (d Decoder) Decode(buffer []uint64, scale float32) []byte {
	return d.DecodeInto(make([]byte, 0, BytesPerBin*len(buffer)), buffer, scale)
}

// DecodeInto appends the decoded bins to dst and returns the extended slice.
func (d Decoder) DecodeInto(dst []byte, buffer []uint64, scale float32) []byte {
	for _, word := range buffer {
		v := d.Magnitude(word) * scale
		dst = binary.NativeEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// Magnitude returns the unscaled magnitude of one word as float32.
func (d Decoder) Magnitude(word uint64) float32 {
	exponent := uint(word >> MantissaBits)
	mantissa := word & mantissaMask
	shift := 2 * exponent

	switch d.Overflow {
	case OverflowWrap:
		return float32(mantissa << shift)
	case OverflowSaturate:
		if mantissa != 0 && shift > uint(bits.LeadingZeros64(mantissa)) {
			return float32(uint64(math.MaxUint64))
		}
		return float32(mantissa << shift)
	default:
		if shift <= uint(bits.LeadingZeros64(mantissa)) {
			return float32(mantissa << shift)
		}
		// Scaling by a power of two is exact, so rounding once on the
		// mantissa gives the same result as rounding the full-width value.
		return float32(math.Ldexp(float64(float32(mantissa)), int(shift)))
	}
}

// Encode packs a magnitude into a spectrum word using the smallest exponent
// whose mantissa fits in 56 bits. Low bits that do not fit are truncated,
// as the hardware does.
func Encode(magnitude uint64) uint64 {
	var exponent uint64
	for magnitude > mantissaMask {
		magnitude >>= 2
		exponent++
	}
	return exponent<<MantissaBits | magnitude
}

// EncodeWord packs an explicit exponent and mantissa. The mantissa is
// truncated to 56 bits.
func EncodeWord(exponent uint8, mantissa uint64) uint64 {
	return uint64(exponent)<<MantissaBits | mantissa&mantissaMask
}

// Bins converts a decoded payload back to float32 values. It is the inverse
// of the byte layout produced by Decode and is used by consumers and tools.
func Bins(payload []byte) []float32 {
	out := make([]float32, len(payload)/BytesPerBin)
	for i := range out {
		out[i] = math.Float32frombits(binary.NativeEndian.Uint32(payload[i*BytesPerBin:]))
	}
	return out
}
