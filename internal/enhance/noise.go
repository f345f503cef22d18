package enhance

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/book-expert/pdf-narrator/internal/audio"
)

// Spectral gating parameters.
const (
	fftSize          = 1024
	hopSize          = fftSize / 4
	noiseStdThresh   = 1.5
	propDecrease     = 0.8
	freqSmoothHz     = 500.0
	timeSmoothMs     = 50.0
	dbFloor          = 1e-10
	dbTopRange       = 80.0
	windowSumEpsilon = 1e-8
)

// ReduceNoise applies stationary spectral gating. The noise profile is
// estimated from the signal itself: a bin is treated as noise when its level
// is below mean + 1.5 std of that frequency across time. Noise bins are
// attenuated by propDecrease; no bin is ever amplified.
func ReduceNoise(sample audio.Sample) (audio.Sample, error) {
	err := sample.Validate()
	if err != nil {
		return audio.Sample{}, err
	}

	transform := newSTFT(fftSize, hopSize)
	frames, padded := transform.forward(sample.Data)

	mask := noiseMask(frames)
	smoothMask(mask, freqRadius(sample.SampleRate), timeRadius(sample.SampleRate))

	for t, frame := range frames {
		for f := range frame {
			gain := mask[t][f]*propDecrease + (1 - propDecrease)
			frame[f] *= complex(gain, 0)
		}
	}

	data := transform.inverse(frames, padded, len(sample.Data))

	return audio.Sample{SampleRate: sample.SampleRate, Data: data}, nil
}

// noiseMask marks bins whose dB level exceeds the per-frequency threshold.
func noiseMask(frames [][]complex128) [][]float64 {
	bins := len(frames[0])
	levels := make([][]float64, len(frames))
	maxLevel := math.Inf(-1)

	for t, frame := range frames {
		levels[t] = make([]float64, bins)
		for f, c := range frame {
			db := 20 * math.Log10(math.Max(dbFloor, cmplxAbs(c)))
			levels[t][f] = db
			maxLevel = math.Max(maxLevel, db)
		}
	}

	floor := maxLevel - dbTopRange
	count := float64(len(frames))
	mask := make([][]float64, len(frames))

	for t := range mask {
		mask[t] = make([]float64, bins)
	}

	for f := range bins {
		mean := 0.0
		for t := range levels {
			levels[t][f] = math.Max(levels[t][f], floor)
			mean += levels[t][f]
		}

		mean /= count

		variance := 0.0
		for t := range levels {
			d := levels[t][f] - mean
			variance += d * d
		}

		threshold := mean + noiseStdThresh*math.Sqrt(variance/count)

		for t := range levels {
			if levels[t][f] > threshold {
				mask[t][f] = 1
			}
		}
	}

	return mask
}

func freqRadius(sampleRate int) int {
	binHz := float64(sampleRate) / fftSize

	return max(1, int(freqSmoothHz/binHz))
}

func timeRadius(sampleRate int) int {
	frameMs := float64(hopSize) / float64(sampleRate) * 1000

	return max(1, int(timeSmoothMs/frameMs))
}

// smoothMask convolves the mask with a separable triangular kernel,
// renormalizing at the edges so values stay in [0, 1].
func smoothMask(mask [][]float64, freqR, timeR int) {
	freqKernel := triangle(freqR)
	timeKernel := triangle(timeR)

	for t := range mask {
		mask[t] = convolve(mask[t], freqKernel)
	}

	bins := len(mask[0])
	column := make([]float64, len(mask))

	for f := range bins {
		for t := range mask {
			column[t] = mask[t][f]
		}

		smoothed := convolve(column, timeKernel)
		for t := range mask {
			mask[t][f] = smoothed[t]
		}
	}
}

func triangle(radius int) []float64 {
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		kernel[i] = 1 - math.Abs(float64(i-radius))/float64(radius+1)
	}

	return kernel
}

func convolve(x, kernel []float64) []float64 {
	radius := len(kernel) / 2
	out := make([]float64, len(x))

	for i := range x {
		sum, weight := 0.0, 0.0

		for k, w := range kernel {
			j := i + k - radius
			if j < 0 || j >= len(x) {
				continue
			}

			sum += w * x[j]
			weight += w
		}

		out[i] = sum / weight
	}

	return out
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// stft is a Hann-windowed short-time Fourier transform with centered frames.
type stft struct {
	size   int
	hop    int
	window []float64
	fft    *fourier.FFT
}

func newSTFT(size, hop int) *stft {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}

	return &stft{size: size, hop: hop, window: window, fft: fourier.NewFFT(size)}
}

// forward returns one spectrum per frame and the padded length used.
func (s *stft) forward(x []float64) ([][]complex128, int) {
	pad := s.size / 2
	signal := padCentered(x, pad)

	for (len(signal)-s.size)%s.hop != 0 {
		signal = append(signal, 0)
	}

	count := 1 + (len(signal)-s.size)/s.hop
	frames := make([][]complex128, count)
	segment := make([]float64, s.size)

	for t := range count {
		start := t * s.hop
		for i := range segment {
			segment[i] = signal[start+i] * s.window[i]
		}

		frames[t] = s.fft.Coefficients(nil, segment)
	}

	return frames, len(signal)
}

// inverse overlap-adds the frames with window-squared normalization and
// crops the centered padding to return exactly n values.
func (s *stft) inverse(frames [][]complex128, padded, n int) []float64 {
	out := make([]float64, padded)
	norm := make([]float64, padded)
	segment := make([]float64, s.size)
	scale := 1 / float64(s.size)

	for t, frame := range frames {
		// gonum leaves the inverse unnormalized.
		s.fft.Sequence(segment, frame)

		start := t * s.hop
		for i, v := range segment {
			out[start+i] += v * scale * s.window[i]
			norm[start+i] += s.window[i] * s.window[i]
		}
	}

	pad := s.size / 2
	result := make([]float64, n)

	for i := range result {
		w := norm[pad+i]
		if w > windowSumEpsilon {
			result[i] = out[pad+i] / w
		}
	}

	return result
}

// padCentered pads x by pad values on each side, reflecting when the signal
// is long enough and zero-filling otherwise.
func padCentered(x []float64, pad int) []float64 {
	signal := make([]float64, 0, len(x)+2*pad)

	if len(x) > pad {
		for i := pad; i > 0; i-- {
			signal = append(signal, x[i])
		}

		signal = append(signal, x...)

		last := len(x) - 1
		for i := 1; i <= pad; i++ {
			signal = append(signal, x[last-i])
		}

		return signal
	}

	signal = append(signal, make([]float64, pad)...)
	signal = append(signal, x...)

	return append(signal, make([]float64, pad)...)
}
