// Package audio provides the in-memory sample type and the container codecs
// used to move voice samples and synthesized speech on and off disk.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxSampleRate bounds the sample rates accepted by the enhancer and codecs.
const MaxSampleRate = 192000

// Errors for sample validation.
var (
	ErrEmptySample        = errors.New("audio sample is empty")
	ErrInvalidSampleRate  = errors.New("invalid sample rate")
	ErrSampleRateMismatch = errors.New("sample rates differ")
)

const errFmtSampleRateRange = "%w: %d Hz (must be between 1 and %d Hz)"

// Sample is a mono sequence of amplitudes in [-1, 1] at a fixed rate.
// Transforms never mutate a Sample in place; they return a new one.
type Sample struct {
	SampleRate int
	Data       []float64
}

// Len returns the number of amplitude values.
func (s Sample) Len() int {
	return len(s.Data)
}

// Duration returns the playback length of the sample.
func (s Sample) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}

	return time.Duration(float64(len(s.Data)) / float64(s.SampleRate) * float64(time.Second))
}

// Clone returns a deep copy.
func (s Sample) Clone() Sample {
	data := make([]float64, len(s.Data))
	copy(data, s.Data)

	return Sample{SampleRate: s.SampleRate, Data: data}
}

// Peak returns the largest absolute amplitude.
func (s Sample) Peak() float64 {
	peak := 0.0

	for _, v := range s.Data {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	return peak
}

// Mean returns the average amplitude (the DC offset).
func (s Sample) Mean() float64 {
	if len(s.Data) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range s.Data {
		sum += v
	}

	return sum / float64(len(s.Data))
}

// Validate checks that the sample can be processed.
func (s Sample) Validate() error {
	err := ValidateSampleRate(s.SampleRate)
	if err != nil {
		return err
	}

	if len(s.Data) == 0 {
		return ErrEmptySample
	}

	return nil
}

// ValidateSampleRate checks that rate lies within (0, MaxSampleRate].
func ValidateSampleRate(rate int) error {
	if rate <= 0 || rate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidSampleRate, rate, MaxSampleRate)
	}

	return nil
}

// Concat joins samples that share a sample rate.
func Concat(parts ...Sample) (Sample, error) {
	if len(parts) == 0 {
		return Sample{}, ErrEmptySample
	}

	rate := parts[0].SampleRate
	total := 0

	for _, part := range parts {
		if part.SampleRate != rate {
			return Sample{}, fmt.Errorf("%w: %d Hz and %d Hz", ErrSampleRateMismatch, rate, part.SampleRate)
		}

		total += len(part.Data)
	}

	data := make([]float64, 0, total)
	for _, part := range parts {
		data = append(data, part.Data...)
	}

	return Sample{SampleRate: rate, Data: data}, nil
}
