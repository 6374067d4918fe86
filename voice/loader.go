package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"voice-mood/utils"
	"voice-mood/wav"
)

const DefaultMinInputBytes = 1000

// Converter canonicalises containers the loader cannot decode in-process.
type Converter interface {
	Probe(ctx context.Context, inputPath string) (wav.ProbeInfo, error)
	ToWAV(ctx context.Context, inputPath, outputPath string) error
}

// Loader decodes uploaded bytes into RawAudio.
type Loader struct {
	converter     Converter
	scratchDir    string
	minInputBytes int
	logger        *slog.Logger
}

func NewLoader(converter Converter, scratchDir string, minInputBytes int) *Loader {
	if scratchDir == "" {
		scratchDir = "tmp"
	}
	if minInputBytes <= 0 {
		minInputBytes = DefaultMinInputBytes
	}
	return &Loader{
		converter:     converter,
		scratchDir:    scratchDir,
		minInputBytes: minInputBytes,
		logger:        utils.GetLogger(),
	}
}

// Load validates and decodes data. filename is only a decode hint.
func (l *Loader) Load(ctx context.Context, data []byte, filename string) (*RawAudio, error) {
	if len(data) == 0 {
		return nil, newError(KindInputRejected, ErrEmptyInput.Error(), ErrEmptyInput)
	}
	if len(data) < l.minInputBytes {
		return nil, newError(KindInputRejected,
			fmt.Sprintf("audio file too small (%d bytes, minimum %d)", len(data), l.minInputBytes),
			ErrTooSmallInput)
	}

	hint := DetectContainer(data, filename)

	var (
		pcm *wav.PCM
		err error
	)
	switch hint {
	case ContainerWAV:
		pcm, err = wav.DecodeWAV(bytes.NewReader(data))
		if errors.Is(err, wav.ErrUnsupportedEncoding) {
			l.logger.DebugContext(ctx, "wav codec needs conversion", slog.String("reason", err.Error()))
			pcm, err = l.canonicalize(ctx, data, hint)
			break
		}
		if err != nil {
			return nil, newError(KindDecode, "unable to decode wav audio", err)
		}
	case ContainerMP3:
		pcm, err = wav.DecodeMP3(bytes.NewReader(data))
		if err != nil {
			return nil, newError(KindDecode, "unable to decode mp3 audio", err)
		}
	default:
		pcm, err = l.canonicalize(ctx, data, hint)
	}
	if err != nil {
		return nil, err
	}

	if len(pcm.Samples) == 0 || pcm.SampleRate <= 0 {
		return nil, newError(KindDecode, "audio contains no samples", wav.ErrNoAudioData)
	}

	return newRawAudio(pcm.Samples, pcm.SampleRate), nil
}

func (l *Loader) canonicalize(ctx context.Context, data []byte, hint Container) (*wav.PCM, error) {
	if l.converter == nil {
		return nil, newError(KindConversion, "audio format not supported", errors.New("no converter configured"))
	}

	dir, err := l.newScratchDir()
	if err != nil {
		return nil, newError(KindInternal, "unable to prepare audio", err)
	}
	defer l.cleanup(ctx, dir)

	inputPath := filepath.Join(dir, "input"+hint.Ext())
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return nil, newError(KindInternal, "unable to prepare audio", err)
	}

	info, err := l.converter.Probe(ctx, inputPath)
	if err != nil {
		return nil, newError(KindDecode, "unable to read audio container", err)
	}
	l.logger.DebugContext(ctx, "probed upload",
		slog.String("format", info.FormatName),
		slog.String("codec", info.Codec),
		slog.Int("sampleRate", info.SampleRate),
		slog.Int("channels", info.Channels),
	)

	outputPath := filepath.Join(dir, "canonical.wav")
	if err := l.converter.ToWAV(ctx, inputPath, outputPath); err != nil {
		return nil, newError(KindConversion, "unable to convert audio", err)
	}

	f, err := os.Open(outputPath)
	if err != nil {
		return nil, newError(KindConversion, "unable to convert audio", err)
	}
	defer f.Close()

	pcm, err := wav.DecodeWAV(f)
	if err != nil {
		return nil, newError(KindConversion, "unable to convert audio", err)
	}
	return pcm, nil
}

func (l *Loader) newScratchDir() (string, error) {
	dir := filepath.Join(l.scratchDir, "req_"+uuid.NewString())
	if err := utils.CreateFolder(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// cleanup never fails the request; it only reports.
func (l *Loader) cleanup(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		l.logger.WarnContext(ctx, "failed to remove scratch directory",
			slog.String("dir", dir),
			slog.Any("error", err),
		)
	}
}
