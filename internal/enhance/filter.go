package enhance

import (
	"errors"
	"fmt"
	"math"

	"github.com/book-expert/pdf-narrator/internal/audio"
)

const (
	// HighPassHz removes sub-bass rumble.
	HighPassHz = 80.0
	// LowPassHz removes hiss; capped at LowPassNyquistRatio of Nyquist.
	LowPassHz = 8000.0
	// LowPassNyquistRatio keeps the low-pass cutoff strictly below Nyquist.
	LowPassNyquistRatio = 0.95
)

// ErrUnsupportedSampleRate is returned when the filter bands do not fit the rate.
var ErrUnsupportedSampleRate = errors.New("sample rate too low for band filtering")

// biquad holds normalized second-order coefficients (a0 == 1).
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// butterworth2 designs a 2-pole Butterworth section via the bilinear
// transform with frequency prewarping.
func butterworth2(cutoff float64, sampleRate int, highPass bool) biquad {
	k := math.Tan(math.Pi * cutoff / float64(sampleRate))
	q := 1 / math.Sqrt2
	norm := 1 / (1 + k/q + k*k)

	section := biquad{
		a1: 2 * (k*k - 1) * norm,
		a2: (1 - k/q + k*k) * norm,
	}

	if highPass {
		section.b0 = norm
		section.b1 = -2 * norm
		section.b2 = norm
	} else {
		section.b0 = k * k * norm
		section.b1 = 2 * section.b0
		section.b2 = section.b0
	}

	return section
}

// steadyState returns the transposed direct-form II state for a unit step.
func (f biquad) steadyState() (z1, z2 float64) {
	gain := (f.b0 + f.b1 + f.b2) / (1 + f.a1 + f.a2)
	z2 = f.b2 - f.a2*gain
	z1 = f.b1 - f.a1*gain + z2

	return z1, z2
}

// run filters x in place, starting from the steady state scaled by x[0].
func (f biquad) run(x []float64) {
	if len(x) == 0 {
		return
	}

	z1, z2 := f.steadyState()
	z1 *= x[0]
	z2 *= x[0]

	for i, in := range x {
		out := f.b0*in + z1
		z1 = f.b1*in - f.a1*out + z2
		z2 = f.b2*in - f.a2*out
		x[i] = out
	}
}

// filtfilt applies f forward and backward, so no phase shift is introduced.
// The signal is extended by odd reflection to tame edge transients.
func (f biquad) filtfilt(x []float64) []float64 {
	padLen := min(3*3, len(x)-1)

	ext := make([]float64, 0, len(x)+2*padLen)
	for i := padLen; i > 0; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}

	ext = append(ext, x...)

	last := len(x) - 1
	for i := 1; i <= padLen; i++ {
		ext = append(ext, 2*x[last]-x[last-i])
	}

	f.run(ext)
	reverse(ext)
	f.run(ext)
	reverse(ext)

	out := make([]float64, len(x))
	copy(out, ext[padLen:padLen+len(x)])

	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// LowPassCutoff returns the effective low-pass cutoff for a sample rate.
func LowPassCutoff(sampleRate int) float64 {
	nyquist := float64(sampleRate) / 2

	return math.Min(LowPassHz, LowPassNyquistRatio*nyquist)
}

// Filter applies the zero-phase 80 Hz high-pass, then the low-pass at
// LowPassCutoff.
func Filter(sample audio.Sample) (audio.Sample, error) {
	err := sample.Validate()
	if err != nil {
		return audio.Sample{}, err
	}

	nyquist := float64(sample.SampleRate) / 2
	if HighPassHz >= LowPassNyquistRatio*nyquist {
		return audio.Sample{}, fmt.Errorf("%w: %d Hz", ErrUnsupportedSampleRate, sample.SampleRate)
	}

	highPass := butterworth2(HighPassHz, sample.SampleRate, true)
	lowPass := butterworth2(LowPassCutoff(sample.SampleRate), sample.SampleRate, false)

	data := highPass.filtfilt(sample.Data)
	data = lowPass.filtfilt(data)

	return audio.Sample{SampleRate: sample.SampleRate, Data: data}, nil
}
