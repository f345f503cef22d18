package enhance

import (
	"math"
	"sort"
	"time"

	"github.com/book-expert/pdf-narrator/internal/audio"
)

const (
	snrFrameMs        = 20
	noisePercentile   = 0.1
	signalPercentile  = 0.9
	minEnergy         = 1e-12
	maxReportedSNRdB  = 120.0
	millisecondsInSec = 1000
)

// QualityReport compares a sample before and after enhancement.
// It is diagnostic only; nothing in the pipeline depends on it.
type QualityReport struct {
	SNRBeforeDB    float64
	SNRAfterDB     float64
	PeakBefore     float64
	PeakAfter      float64
	DurationBefore time.Duration
	DurationAfter  time.Duration
}

// Improvement is the SNR gain in dB.
func (q QualityReport) Improvement() float64 {
	return q.SNRAfterDB - q.SNRBeforeDB
}

// Improved reports whether the estimated SNR went up.
func (q QualityReport) Improved() bool {
	return q.Improvement() > 0
}

// Analyze estimates the SNR of both samples and collects peak and duration.
func Analyze(before, after audio.Sample) QualityReport {
	return QualityReport{
		SNRBeforeDB:    EstimateSNR(before),
		SNRAfterDB:     EstimateSNR(after),
		PeakBefore:     before.Peak(),
		PeakAfter:      after.Peak(),
		DurationBefore: before.Duration(),
		DurationAfter:  after.Duration(),
	}
}

// EstimateSNR treats the quiet frames as the noise floor and the loud
// frames as signal, returning the ratio of their mean energies in dB.
func EstimateSNR(sample audio.Sample) float64 {
	if sample.SampleRate <= 0 || len(sample.Data) == 0 {
		return 0
	}

	frameLen := max(1, sample.SampleRate*snrFrameMs/millisecondsInSec)

	var energies []float64

	for start := 0; start < len(sample.Data); start += frameLen {
		end := min(start+frameLen, len(sample.Data))

		sum := 0.0
		for _, v := range sample.Data[start:end] {
			sum += v * v
		}

		energies = append(energies, sum/float64(end-start))
	}

	sort.Float64s(energies)

	noise := math.Max(energies[int(noisePercentile*float64(len(energies)-1))], minEnergy)
	signal := math.Max(energies[int(signalPercentile*float64(len(energies)-1))], minEnergy)

	return math.Min(10*math.Log10(signal/noise), maxReportedSNRdB)
}
