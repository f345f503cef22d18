package enhance

import (
	"math"

	"github.com/book-expert/pdf-narrator/internal/audio"
)

const (
	// TargetPeak leaves 10% headroom below full scale.
	TargetPeak = 0.9
	// TrimTopDB is how far below the peak an amplitude counts as silence.
	TrimTopDB = 30.0
)

// Normalize removes the DC offset and scales the peak to TargetPeak.
// A silent sample is returned unchanged.
func Normalize(sample audio.Sample) (audio.Sample, error) {
	err := sample.Validate()
	if err != nil {
		return audio.Sample{}, err
	}

	if sample.Peak() == 0 {
		return sample.Clone(), nil
	}

	mean := sample.Mean()
	out := make([]float64, len(sample.Data))

	peak := 0.0

	for i, v := range sample.Data {
		out[i] = v - mean
		if a := math.Abs(out[i]); a > peak {
			peak = a
		}
	}

	// Constant input becomes all zeros once the offset is gone.
	if peak == 0 {
		return audio.Sample{SampleRate: sample.SampleRate, Data: out}, nil
	}

	gain := TargetPeak / peak
	for i := range out {
		out[i] *= gain
	}

	return audio.Sample{SampleRate: sample.SampleRate, Data: out}, nil
}

// TrimSilence drops leading and trailing samples that are not louder than
// TrimTopDB below the peak. Interior silence is kept.
func TrimSilence(sample audio.Sample) (audio.Sample, error) {
	err := sample.Validate()
	if err != nil {
		return audio.Sample{}, err
	}

	peak := sample.Peak()
	if peak == 0 {
		return sample.Clone(), nil
	}

	threshold := peak * math.Pow(10, -TrimTopDB/20)

	first, last := -1, -1

	for i, v := range sample.Data {
		if math.Abs(v) > threshold {
			if first < 0 {
				first = i
			}

			last = i
		}
	}

	trimmed := make([]float64, last-first+1)
	copy(trimmed, sample.Data[first:last+1])

	return audio.Sample{SampleRate: sample.SampleRate, Data: trimmed}, nil
}
