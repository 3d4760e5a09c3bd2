package dsp

import (
	"fmt"
	"math"
)

// kaiserBeta shapes the window applied to the filter kernel. 5.0 gives
// roughly 50 dB of stopband attenuation, plenty below the quantisation
// floor of the int16 samples the transmit path ends in.
const kaiserBeta = 5.0

// Resampler converts sample sequences between two rates related by the
// integer ratio up/down, where up = dstRate/g, down = srcRate/g and
// g = gcd(srcRate, dstRate). The ratio is therefore always in lowest
// terms. Conceptually the input is upsampled by zero-insertion, low-pass
// filtered at the narrower of the two Nyquist frequencies, and decimated;
// the implementation evaluates only the output samples directly against
// the Kaiser-windowed sinc kernel, with the kernel's group delay
// compensated so the output stays time-aligned with the input.
//
// A Resampler is immutable after construction and safe for concurrent use.
type Resampler struct {
	up      int
	down    int
	taps    []float64
	halfLen int
}

// NewResampler builds a resampler from srcRate to dstRate (both Hz).
// Returns [ErrInvalidRate] when either rate is not positive.
func NewResampler(srcRate, dstRate int) (*Resampler, error) {
	if srcRate <= 0 {
		return nil, fmt.Errorf("%w: source rate %d", ErrInvalidRate, srcRate)
	}
	if dstRate <= 0 {
		return nil, fmt.Errorf("%w: target rate %d", ErrInvalidRate, dstRate)
	}

	g := gcd(srcRate, dstRate)
	r := &Resampler{
		up:   dstRate / g,
		down: srcRate / g,
	}
	if r.up == r.down {
		// Identity ratio: no filtering needed.
		return r, nil
	}

	// Kernel sized to the larger of the two factors so the transition band
	// scales with the narrower Nyquist frequency.
	maxRate := max(r.up, r.down)
	r.halfLen = 10 * maxRate
	r.taps = lowpassKernel(2*r.halfLen+1, 1/float64(maxRate))

	// Zero-insertion spreads each input sample's energy across up output
	// positions; scaling the kernel restores unity passband gain.
	for i := range r.taps {
		r.taps[i] *= float64(r.up)
	}
	return r, nil
}

// Ratio returns the reduced (up, down) resampling ratio.
func (r *Resampler) Ratio() (up, down int) {
	return r.up, r.down
}

// OutLen returns the output length for an input of n samples:
// ceil(n * up / down).
func (r *Resampler) OutLen(n int) int {
	return int((int64(n)*int64(r.up) + int64(r.down) - 1) / int64(r.down))
}

// Resample converts x from the source rate to the target rate.
func (r *Resampler) Resample(x []float64) []float64 {
	if r.up == r.down {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}

	out := make([]float64, r.OutLen(len(x)))
	for m := range out {
		lo, hi, t := r.kernelSpan(m, len(x))
		var acc float64
		for i := lo; i <= hi; i++ {
			acc += r.taps[t-i*r.up] * x[i]
		}
		out[m] = acc
	}
	return out
}

// ResampleComplex converts a complex sequence between the same two rates.
// The real-valued kernel is applied to both components, accumulating in
// float64.
func (r *Resampler) ResampleComplex(x []complex64) []complex64 {
	if r.up == r.down {
		out := make([]complex64, len(x))
		copy(out, x)
		return out
	}

	out := make([]complex64, r.OutLen(len(x)))
	for m := range out {
		lo, hi, t := r.kernelSpan(m, len(x))
		var re, im float64
		for i := lo; i <= hi; i++ {
			h := r.taps[t-i*r.up]
			re += h * float64(real(x[i]))
			im += h * float64(imag(x[i]))
		}
		out[m] = complex(float32(re), float32(im))
	}
	return out
}

// kernelSpan returns the input index range [lo, hi] contributing to output
// sample m, together with the delay-compensated kernel origin t. Output
// sample m is the kernel dot product taps[t-i*up] · x[i] over that range;
// indices outside the input are treated as zeros.
func (r *Resampler) kernelSpan(m, n int) (lo, hi, t int) {
	t = m*r.down + r.halfLen

	lo = (t - 2*r.halfLen + r.up - 1) / r.up
	if lo < 0 {
		lo = 0
	}
	hi = t / r.up
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi, t
}

// lowpassKernel designs an n-tap Kaiser-windowed sinc low-pass filter with
// the given cutoff as a fraction of the Nyquist frequency, normalized to
// unity DC gain.
func lowpassKernel(n int, cutoff float64) []float64 {
	taps := make([]float64, n)
	center := float64(n-1) / 2
	denom := besselI0(kaiserBeta)

	var sum float64
	for i := range taps {
		x := float64(i) - center

		// Kaiser window term.
		u := x / center
		w := besselI0(kaiserBeta*math.Sqrt(1-u*u)) / denom

		taps[i] = cutoff * sinc(cutoff*x) * w
		sum += taps[i]
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

// sinc is the normalized sinc function sin(πx)/(πx).
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// besselI0 evaluates the zeroth-order modified Bessel function of the
// first kind by its power series, which converges rapidly for the argument
// range a Kaiser window produces.
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	half := x / 2
	for k := 1; k < 64; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-15 {
			break
		}
	}
	return sum
}
