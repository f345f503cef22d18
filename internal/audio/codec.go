package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

const (
	outputBitDepth   = 16
	wavFormatPCM     = 1
	mp3Channels      = 2
	mp3BytesPerValue = 2
	filePermissions  = 0o600
	dirPermissions   = 0o750
)

// Errors returned by the codecs.
var (
	ErrInvalidWAV = errors.New("not a valid WAV file")
	ErrNoChannels = errors.New("audio stream has no channels")
)

// Load reads an audio file and returns it as a mono Sample.
// The container is chosen by file extension.
func Load(path string) (Sample, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Sample{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to open audio file %q: %w", path, err)
	}
	defer file.Close()

	sample, decodeErr := Decode(file, format)
	if decodeErr != nil {
		return Sample{}, fmt.Errorf("failed to decode %q: %w", path, decodeErr)
	}

	return sample, nil
}

// Save writes s as 16-bit PCM mono WAV, creating parent directories.
func Save(path string, s Sample) error {
	dirErr := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if dirErr != nil {
		return fmt.Errorf("failed to create output directory: %w", dirErr)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to create audio file %q: %w", path, err)
	}

	encodeErr := EncodeWAV(file, s)
	closeErr := file.Close()

	if encodeErr != nil {
		return encodeErr
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close audio file %q: %w", path, closeErr)
	}

	return nil
}

// Decode reads a container of the given format into a mono Sample.
func Decode(r io.ReadSeeker, format Format) (Sample, error) {
	switch format {
	case FormatWAV:
		return DecodeWAV(r)
	case FormatMP3:
		return DecodeMP3(r)
	case FormatFLAC:
		return DecodeFLAC(r)
	default:
		return Sample{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// DecodeWAV reads an integer PCM WAV stream.
func DecodeWAV(r io.ReadSeeker) (Sample, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Sample{}, ErrInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Sample{}, fmt.Errorf("failed to read PCM data: %w", err)
	}

	channels := int(decoder.NumChans)
	if channels == 0 {
		return Sample{}, ErrNoChannels
	}

	bitDepth := int(decoder.BitDepth)
	scale := math.Exp2(float64(bitDepth - 1))
	offset := 0.0
	// 8-bit WAV is unsigned.
	if bitDepth == 8 {
		offset = scale
	}

	values := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		values[i] = (float64(v) - offset) / scale
	}

	return Sample{
		SampleRate: int(decoder.SampleRate),
		Data:       downmix(values, channels),
	}, nil
}

// DecodeMP3 reads an MP3 stream. The decoder always yields 16-bit stereo.
func DecodeMP3(r io.Reader) (Sample, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to open MP3 stream: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	count := len(raw) / mp3BytesPerValue
	values := make([]float64, count)

	for i := range count {
		v := int16(binary.LittleEndian.Uint16(raw[i*mp3BytesPerValue:]))
		values[i] = float64(v) / math.MaxInt16
	}

	return Sample{
		SampleRate: decoder.SampleRate(),
		Data:       downmix(values, mp3Channels),
	}, nil
}

// DecodeFLAC reads a FLAC stream frame by frame.
func DecodeFLAC(r io.Reader) (Sample, error) {
	stream, err := flac.New(r)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to open FLAC stream: %w", err)
	}

	channels := int(stream.Info.NChannels)
	if channels == 0 {
		return Sample{}, ErrNoChannels
	}

	scale := math.Exp2(float64(stream.Info.BitsPerSample) - 1)

	var data []float64

	for {
		frame, parseErr := stream.ParseNext()
		if errors.Is(parseErr, io.EOF) {
			break
		}

		if parseErr != nil {
			return Sample{}, fmt.Errorf("failed to decode FLAC frame: %w", parseErr)
		}

		blockSize := len(frame.Subframes[0].Samples)
		for i := range blockSize {
			sum := 0.0
			for _, sub := range frame.Subframes {
				sum += float64(sub.Samples[i])
			}

			data = append(data, sum/float64(len(frame.Subframes))/scale)
		}
	}

	return Sample{SampleRate: int(stream.Info.SampleRate), Data: data}, nil
}

// EncodeWAV writes s as 16-bit PCM mono WAV. Values outside [-1, 1] are clipped.
func EncodeWAV(w io.WriteSeeker, s Sample) error {
	rateErr := ValidateSampleRate(s.SampleRate)
	if rateErr != nil {
		return rateErr
	}

	encoder := wav.NewEncoder(w, s.SampleRate, outputBitDepth, 1, wavFormatPCM)

	ints := make([]int, len(s.Data))
	for i, v := range s.Data {
		ints[i] = int(math.Round(clip(v) * math.MaxInt16))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: s.SampleRate},
		Data:           ints,
		SourceBitDepth: outputBitDepth,
	}

	writeErr := encoder.Write(buf)
	if writeErr != nil {
		return fmt.Errorf("failed to write WAV data: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", closeErr)
	}

	return nil
}

// EncodeWAVBytes returns s encoded as a WAV file image.
func EncodeWAVBytes(s Sample) ([]byte, error) {
	buf := &seekBuffer{}

	err := EncodeWAV(buf, s)
	if err != nil {
		return nil, err
	}

	return buf.data, nil
}

// DecodeWAVBytes decodes an in-memory WAV file image.
func DecodeWAVBytes(data []byte) (Sample, error) {
	return DecodeWAV(bytes.NewReader(data))
}

func downmix(interleaved []float64, channels int) []float64 {
	if channels == 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float64, frames)

	for i := range frames {
		sum := 0.0
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}

		mono[i] = sum / float64(channels)
	}

	return mono
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch chunk sizes on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}

	copy(b.data[b.pos:end], p)
	b.pos = end

	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(b.pos)
	case io.SeekEnd:
		base = int64(len(b.data))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}

	b.pos = int(next)

	return next, nil
}
