package audio_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/pdf-narrator/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(rate int, seconds, freq, amplitude float64) audio.Sample {
	n := int(float64(rate) * seconds)
	data := make([]float64, n)

	for i := range data {
		data[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}

	return audio.Sample{SampleRate: rate, Data: data}
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	original := sine(16000, 0.25, 440, 0.5)

	encoded, err := audio.EncodeWAVBytes(original)
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(encoded[:4]))

	decoded, err := audio.DecodeWAVBytes(encoded)
	require.NoError(t, err)

	assert.Equal(t, original.SampleRate, decoded.SampleRate)
	require.Equal(t, original.Len(), decoded.Len())

	for i := range original.Data {
		assert.InDelta(t, original.Data[i], decoded.Data[i], 1.0/math.MaxInt16+1e-9)
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "voice.wav")
	original := sine(22050, 0.1, 220, 0.8)

	require.NoError(t, audio.Save(path, original))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	loaded, err := audio.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, loaded.SampleRate)
	assert.Equal(t, original.Len(), loaded.Len())
}

func TestEncodeWAV_ClipsOutOfRange(t *testing.T) {
	t.Parallel()

	encoded, err := audio.EncodeWAVBytes(audio.Sample{SampleRate: 8000, Data: []float64{2, -2, 0}})
	require.NoError(t, err)

	decoded, err := audio.DecodeWAVBytes(encoded)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, decoded.Data[0], 1e-4)
	assert.InDelta(t, -1.0, decoded.Data[1], 1e-4)
}

func TestEncodeWAV_InvalidRate(t *testing.T) {
	t.Parallel()

	_, err := audio.EncodeWAVBytes(audio.Sample{SampleRate: 0, Data: []float64{0}})
	require.ErrorIs(t, err, audio.ErrInvalidSampleRate)
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()

	_, err := audio.DecodeWAVBytes([]byte("definitely not a riff file"))
	require.Error(t, err)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	_, err := audio.Load("voice.ogg")
	require.ErrorIs(t, err, audio.ErrUnsupportedFormat)
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want audio.Format
	}{
		{"a/b/voice.WAV", audio.FormatWAV},
		{"speech.mp3", audio.FormatMP3},
		{"take.flac", audio.FormatFLAC},
	}

	for _, testCase := range tests {
		got, err := audio.FormatFromPath(testCase.path)
		require.NoError(t, err)
		assert.Equal(t, testCase.want, got)
	}

	assert.Equal(t, "audio/mpeg", audio.FormatMP3.ContentType())
	assert.Equal(t, ".wav", audio.FormatWAV.Extension())
}

func TestSample_Helpers(t *testing.T) {
	t.Parallel()

	s := audio.Sample{SampleRate: 4, Data: []float64{0.5, -1, 0.25, 0.25}}

	assert.InDelta(t, 1.0, s.Peak(), 1e-12)
	assert.InDelta(t, 0.0, s.Mean(), 1e-12)
	assert.Equal(t, time.Second, s.Duration())

	clone := s.Clone()
	clone.Data[0] = 9
	assert.InDelta(t, 0.5, s.Data[0], 1e-12)

	require.ErrorIs(t, audio.Sample{SampleRate: 8000}.Validate(), audio.ErrEmptySample)
	require.ErrorIs(t, audio.Sample{SampleRate: -1, Data: []float64{1}}.Validate(), audio.ErrInvalidSampleRate)
}

func TestConcat(t *testing.T) {
	t.Parallel()

	joined, err := audio.Concat(
		audio.Sample{SampleRate: 8000, Data: []float64{1, 2}},
		audio.Sample{SampleRate: 8000, Data: []float64{3}},
	)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, joined.Data)

	_, err = audio.Concat(
		audio.Sample{SampleRate: 8000, Data: []float64{1}},
		audio.Sample{SampleRate: 16000, Data: []float64{1}},
	)
	require.ErrorIs(t, err, audio.ErrSampleRateMismatch)
}
