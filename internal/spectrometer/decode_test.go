package spectrometer

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOne(t *testing.T, d Decoder, word uint64, scale float32) float32 {
	t.Helper()
	out := d.Decode([]uint64{word}, scale)
	require.Len(t, out, BytesPerBin)
	return math.Float32frombits(binary.NativeEndian.Uint32(out))
}

func TestDecodeScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		word  uint64
		scale float32
		want  float32
	}{
		{"exponent 0 mantissa 1 scale 2", 0x00_00000000000001, 2.0, 2.0},
		{"exponent 2 mantissa 1 scale 1", 0x02_00000000000001, 1.0, 16.0},
		{"zero word", 0, 1.0, 0},
		{"max mantissa", 0x00_ffffffffffffff, 1.0, float32(uint64(1)<<56 - 1)},
		{"negative scale", 0x01_00000000000003, -0.5, -6.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, decodeOne(t, Decoder{}, tt.word, tt.scale))
		})
	}
}

func TestDecodeLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 2, 7, 4096} {
		buf := make([]uint64, n)
		assert.Len(t, Decode(buf, 1), BytesPerBin*n, "length %d", n)
	}
	assert.NotNil(t, Decode(nil, 1))
}

func TestDecodeMatchesShiftWhenNoOverflow(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for e := uint64(0); e <= 63; e++ {
		for range 64 {
			// Keep the mantissa small enough that the shift fits.
			shift := 2 * e
			var mantissa uint64
			if shift < 64 {
				mantissa = rng.Uint64() & mantissaMask
				mantissa >>= min(shift, MantissaBits)
			}
			word := e<<MantissaBits | mantissa
			want := float32(mantissa << shift)
			for _, p := range []OverflowPolicy{OverflowWiden, OverflowWrap, OverflowSaturate} {
				assert.Equal(t, want, decodeOne(t, Decoder{Overflow: p}, word, 1), "e=%d m=%#x policy=%s", e, mantissa, p)
			}
		}
	}
}

// Up to exponent 31 the shift count stays below 64 and wrap equals the
// hardware reference bit for bit. Past that, the low 64 bits of a shift of 64
// or more are zero.
func TestWrapKeepsLow64Bits(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 5))
	d := Decoder{Overflow: OverflowWrap}
	for e := uint64(0); e <= 63; e++ {
		if e >= 32 {
			assert.Zero(t, decodeOne(t, d, e<<MantissaBits|1, 1), "e=%d", e)
		}
		mantissa := rng.Uint64() & mantissaMask
		word := e<<MantissaBits | mantissa
		assert.Equal(t, float32(mantissa<<(2*e)), decodeOne(t, d, word, 1), "e=%d", e)
	}
}

func TestOverflowPolicies(t *testing.T) {
	t.Parallel()

	maxU64 := float32(uint64(math.MaxUint64))

	tests := []struct {
		name     string
		word     uint64
		widen    float32
		wrap     float32
		saturate float32
	}{
		{
			name:     "shift of 64",
			word:     EncodeWord(32, 1),
			widen:    float32(math.Ldexp(1, 64)),
			wrap:     0,
			saturate: maxU64,
		},
		{
			name:     "top bit lost",
			word:     EncodeWord(31, 5),
			widen:    float32(math.Ldexp(5, 62)),
			wrap:     float32(math.Ldexp(1, 62)),
			saturate: maxU64,
		},
		{
			name:     "beyond float32",
			word:     EncodeWord(255, 1<<55),
			widen:    float32(math.Inf(1)),
			wrap:     0,
			saturate: maxU64,
		},
		{
			name:     "zero mantissa large exponent",
			word:     EncodeWord(200, 0),
			widen:    0,
			wrap:     0,
			saturate: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.widen, decodeOne(t, Decoder{Overflow: OverflowWiden}, tt.word, 1), "widen")
			assert.Equal(t, tt.wrap, decodeOne(t, Decoder{Overflow: OverflowWrap}, tt.word, 1), "wrap")
			assert.Equal(t, tt.saturate, decodeOne(t, Decoder{Overflow: OverflowSaturate}, tt.word, 1), "saturate")
		})
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	t.Parallel()

	for _, p := range []OverflowPolicy{OverflowWiden, OverflowWrap, OverflowSaturate} {
		got, err := ParseOverflowPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	got, err := ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OverflowWiden, got)

	_, err = ParseOverflowPolicy("clamp")
	require.Error(t, err)
}

func TestEncode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(42), Encode(42))
	assert.Equal(t, mantissaMask, Encode(mantissaMask))

	word := Encode(1 << 60)
	assert.Equal(t, uint64(3), word>>MantissaBits)
	assert.Equal(t, float32(math.Ldexp(1, 60)), decodeOne(t, Decoder{}, word, 1))

	// truncation keeps the leading 56 bits
	word = Encode(math.MaxUint64)
	assert.Equal(t, uint64(4), word>>MantissaBits)
	assert.InEpsilon(t, float32(math.MaxUint64), decodeOne(t, Decoder{}, word, 1), 1e-6)
}

func TestBinsInvertsDecode(t *testing.T) {
	t.Parallel()

	buf := []uint64{Encode(1), Encode(1000), Encode(1 << 40)}
	got := Bins(Decode(buf, 0.5))
	assert.Equal(t, []float32{0.5, 500, float32(math.Ldexp(1, 39))}, got)
}

func BenchmarkDecode(b *testing.B) {
	buf := make([]uint64, 4096)
	for i := range buf {
		buf[i] = Encode(uint64(i) * 0x1234567)
	}
	dst := make([]byte, 0, BytesPerBin*len(buf))
	d := Decoder{}

	b.ReportAllocs()
	b.SetBytes(int64(BytesPerBin * len(buf)))
	for b.Loop() {
		dst = d.DecodeInto(dst[:0], buf, 0.25)
	}
}
