package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gowav "github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

const (
	wavFormatPCM = 1
	mp3Channels  = 2
)

var (
	// ErrInvalidWAV reports bytes that do not form a RIFF/WAVE file.
	ErrInvalidWAV = errors.New("invalid wav container")
	// ErrUnsupportedEncoding reports a readable WAV whose codec is not linear PCM.
	ErrUnsupportedEncoding = errors.New("unsupported wav encoding")
	ErrNoAudioData         = errors.New("no audio data")
)

// PCM is a decoded mono waveform with samples normalised to [-1, 1].
type PCM struct {
	Samples    []float64
	SampleRate int
	Channels   int // channel count of the source before downmixing
	BitDepth   int
}

// Duration in seconds.
func (p *PCM) Duration() float64 {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// DecodeWAV reads a linear PCM WAV stream and downmixes it to mono.
func DecodeWAV(r io.ReadSeeker) (*PCM, error) {
	decoder := gowav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrNoAudioData
	}

	channels := int(decoder.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		channels = 1
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}

	interleaved := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = normaliseInt(v, bitDepth)
	}

	return &PCM{
		Samples:    Downmix(interleaved, channels),
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

func normaliseInt(v int, bitDepth int) float64 {
	switch bitDepth {
	case 8:
		// 8-bit WAV is unsigned
		return (float64(v) - 128.0) / 128.0
	case 24:
		return float64(v) / 8388608.0
	case 32:
		return float64(v) / 2147483648.0
	default:
		return float64(v) / 32768.0
	}
}

// DecodeMP3 decodes an MPEG-1/2 layer III stream. go-mp3 always emits
// signed 16-bit little-endian stereo frames.
func DecodeMP3(r io.Reader) (*PCM, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("create mp3 decoder: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	interleaved := decodeS16LE(raw)
	if len(interleaved) < mp3Channels {
		return nil, ErrNoAudioData
	}

	return &PCM{
		Samples:    Downmix(interleaved, mp3Channels),
		SampleRate: decoder.SampleRate(),
		Channels:   mp3Channels,
		BitDepth:   16,
	}, nil
}

// decodeS16LE normalises signed 16-bit little-endian samples, dropping a trailing odd byte.
func decodeS16LE(raw []byte) []float64 {
	out := make([]float64, len(raw)/2)
	for i := range out {
		out[i] = normaliseInt(int(int16(binary.LittleEndian.Uint16(raw[i*2:]))), 16)
	}
	return out
}

// Downmix averages interleaved channels into one.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
