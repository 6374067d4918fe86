package voice

// Audio Ingestion
//
// Uploads arrive as opaque bytes plus whatever filename the client chose. The
// loader turns them into a mono waveform in two stages:
//
// 1. Decode hint: the container is sniffed from its magic bytes. The filename
//    extension is only consulted when the bytes are inconclusive.
// 2. Decode: WAV (lossless) and MP3 (lossy) are decoded in-process. Every
//    other container, and WAV files carrying a non-PCM codec, are written to a
//    request scratch directory, probed with ffprobe and converted to mono PCM
//    WAV by ffmpeg before being decoded.
//
// Stage-two failures are split: a container ffprobe cannot read is a
// DecodeError, a readable container that ffmpeg fails to convert is a
// ConversionError.

import (
	"bytes"
	"strings"

	"voice-mood/utils"
)

// RawAudio is a decoded mono waveform.
type RawAudio struct {
	Samples    []float64
	SampleRate int
	Duration   float64 // seconds
}

func newRawAudio(samples []float64, sampleRate int) *RawAudio {
	duration := 0.0
	if sampleRate > 0 {
		duration = float64(len(samples)) / float64(sampleRate)
	}
	return &RawAudio{Samples: samples, SampleRate: sampleRate, Duration: duration}
}

// Container is the decode hint derived from an upload.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerWAV
	ContainerMP3
	ContainerFLAC
	ContainerOgg
	ContainerMP4 // mp4, m4a, 3gp, mov
	ContainerWebM
	ContainerAAC
)

func (c Container) String() string {
	switch c {
	case ContainerWAV:
		return "wav"
	case ContainerMP3:
		return "mp3"
	case ContainerFLAC:
		return "flac"
	case ContainerOgg:
		return "ogg"
	case ContainerMP4:
		return "m4a"
	case ContainerWebM:
		return "webm"
	case ContainerAAC:
		return "aac"
	default:
		return "bin"
	}
}

// Ext is the extension used when the upload is written to scratch space.
func (c Container) Ext() string { return "." + c.String() }

var extContainers = map[string]Container{
	".wav":  ContainerWAV,
	".wave": ContainerWAV,
	".mp3":  ContainerMP3,
	".flac": ContainerFLAC,
	".ogg":  ContainerOgg,
	".oga":  ContainerOgg,
	".opus": ContainerOgg,
	".m4a":  ContainerMP4,
	".mp4":  ContainerMP4,
	".3gp":  ContainerMP4,
	".mov":  ContainerMP4,
	".webm": ContainerWebM,
	".aac":  ContainerAAC,
}

// DetectContainer sniffs data and falls back to the filename extension.
func DetectContainer(data []byte, filename string) Container {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ContainerWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return ContainerMP3
	case bytes.HasPrefix(data, []byte("fLaC")):
		return ContainerFLAC
	case bytes.HasPrefix(data, []byte("OggS")):
		return ContainerOgg
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return ContainerMP4
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ContainerWebM
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xF6 == 0xF0:
		// ADTS sync word, layer bits zero
		return ContainerAAC
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	}

	if c, ok := extContainers[utils.FileExt(strings.TrimSpace(filename))]; ok {
		return c
	}
	return ContainerUnknown
}
