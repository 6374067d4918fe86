package voice

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func oggLikeBytes(n int) []byte {
	data := make([]byte, n)
	copy(data, "OggS")
	return data
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch dir to be cleaned up, found %d entries", len(entries))
	}
}

func TestDetectContainer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		data     []byte
		filename string
		want     Container
	}{
		{"riff wave", append([]byte("RIFF\x00\x00\x00\x00WAVE"), 0), "x.bin", ContainerWAV},
		{"id3", []byte("ID3\x04rest"), "", ContainerMP3},
		{"mpeg sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "", ContainerMP3},
		{"adts", []byte{0xFF, 0xF1, 0x50, 0x80}, "", ContainerAAC},
		{"flac", []byte("fLaCxxxx"), "", ContainerFLAC},
		{"ogg", []byte("OggSxxxx"), "voice.wav", ContainerOgg},
		{"m4a", []byte("\x00\x00\x00\x20ftypM4A "), "", ContainerMP4},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, "", ContainerWebM},
		{"extension fallback", []byte("garbage"), "Recording.M4A", ContainerMP4},
		{"unknown", []byte("garbage"), "notes.txt", ContainerUnknown},
	}

	for _, tc := range cases {
		if got := DetectContainer(tc.data, tc.filename); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestLoaderRejectsEmptyAndSmallInput(t *testing.T) {
	t.Parallel()

	conv := &fakeConverter{}
	loader := NewLoader(conv, t.TempDir(), DefaultMinInputBytes)

	_, err := loader.Load(context.Background(), nil, "clip.wav")
	if KindOf(err) != KindInputRejected || !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected empty input rejection, got %v", err)
	}

	_, err = loader.Load(context.Background(), oggLikeBytes(500), "clip.ogg")
	if KindOf(err) != KindInputRejected || !errors.Is(err, ErrTooSmallInput) {
		t.Fatalf("expected too small rejection, got %v", err)
	}
	if conv.probeCalls.Load() != 0 || conv.convertCalls.Load() != 0 {
		t.Fatalf("decoder must not run for rejected input")
	}
}

func TestLoaderDecodesWAVNatively(t *testing.T) {
	t.Parallel()

	samples := sineWave(220, 16000, 0.5, 0.5)
	conv := &fakeConverter{}
	loader := NewLoader(conv, t.TempDir(), DefaultMinInputBytes)

	audio, err := loader.Load(context.Background(), wavBytes(t, samples, 16000), "upload.bin")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if audio.SampleRate != 16000 || len(audio.Samples) != len(samples) {
		t.Fatalf("unexpected audio: rate=%d samples=%d", audio.SampleRate, len(audio.Samples))
	}
	if math.Abs(audio.Duration-0.5) > 1e-9 {
		t.Fatalf("expected 0.5s, got %v", audio.Duration)
	}
	for i := 0; i < len(samples); i += 997 {
		if math.Abs(audio.Samples[i]-samples[i]) > 1e-3 {
			t.Fatalf("sample %d: expected %.4f, got %.4f", i, samples[i], audio.Samples[i])
		}
	}
	if conv.probeCalls.Load() != 0 {
		t.Fatalf("wav must not go through the converter")
	}
}

func TestLoaderDecodesMP3Natively(t *testing.T) {
	t.Parallel()

	data, err := os.ReadFile(filepath.Join("..", "wav", "testdata", "tone_mono.mp3"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if got := DetectContainer(data, "voice.bin"); got != ContainerMP3 {
		t.Fatalf("expected mp3 container, got %v", got)
	}

	conv := &fakeConverter{}
	scratch := t.TempDir()
	audio, err := NewLoader(conv, scratch, DefaultMinInputBytes).Load(context.Background(), data, "voice.bin")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if audio.SampleRate != 32000 || len(audio.Samples) != 30*1152 {
		t.Fatalf("unexpected audio: rate=%d samples=%d", audio.SampleRate, len(audio.Samples))
	}
	if math.Abs(audio.Duration-1.08) > 1e-9 {
		t.Fatalf("expected 1.08s, got %v", audio.Duration)
	}

	silent := true
	for _, v := range audio.Samples {
		if v != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Fatalf("expected decoded samples, got silence")
	}
	if conv.probeCalls.Load() != 0 || conv.convertCalls.Load() != 0 {
		t.Fatalf("mp3 must not go through the converter")
	}
	assertScratchEmpty(t, scratch)
}

func TestLoaderCorruptMP3IsDecodeError(t *testing.T) {
	t.Parallel()

	data := make([]byte, 2000)
	copy(data, "ID3")
	conv := &fakeConverter{}
	_, err := NewLoader(conv, t.TempDir(), DefaultMinInputBytes).Load(context.Background(), data, "clip.mp3")
	if KindOf(err) != KindDecode {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if conv.probeCalls.Load() != 0 {
		t.Fatalf("mp3 must not go through the converter")
	}
}

func TestLoaderCorruptWAVIsDecodeError(t *testing.T) {
	t.Parallel()

	data := make([]byte, 2000)
	copy(data, "RIFF\x00\x00\x00\x00WAVE")
	loader := NewLoader(&fakeConverter{probeErr: errors.New("invalid data")}, t.TempDir(), DefaultMinInputBytes)

	_, err := loader.Load(context.Background(), data, "clip.wav")
	if KindOf(err) != KindDecode {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestLoaderCanonicalizesOtherContainers(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	conv := &fakeConverter{output: sineWave(220, 8000, 1, 0.5), sampleRate: 8000}
	loader := NewLoader(conv, scratch, DefaultMinInputBytes)

	audio, err := loader.Load(context.Background(), oggLikeBytes(4096), "voice.ogg")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if audio.SampleRate != 8000 || len(audio.Samples) != 8000 {
		t.Fatalf("unexpected audio: rate=%d samples=%d", audio.SampleRate, len(audio.Samples))
	}
	if conv.probeCalls.Load() != 1 || conv.convertCalls.Load() != 1 {
		t.Fatalf("expected one probe and one conversion")
	}
	if input, _ := conv.lastInput.Load().(string); !bytes.HasSuffix([]byte(input), []byte(".ogg")) {
		t.Fatalf("scratch input should carry the detected extension, got %q", input)
	}
	assertScratchEmpty(t, scratch)
}

func TestLoaderSeparatesDecodeAndConversionErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		conv *fakeConverter
		want ErrorKind
	}{
		{"unreadable container", &fakeConverter{probeErr: errors.New("invalid data")}, KindDecode},
		{"conversion failure", &fakeConverter{convertErr: errors.New("unsupported codec")}, KindConversion},
	}

	for _, tc := range cases {
		scratch := t.TempDir()
		loader := NewLoader(tc.conv, scratch, DefaultMinInputBytes)

		_, err := loader.Load(context.Background(), oggLikeBytes(4096), "voice.ogg")
		if KindOf(err) != tc.want {
			t.Errorf("%s: expected %s, got %v", tc.name, tc.want, err)
		}
		assertScratchEmpty(t, scratch)
	}
}

func TestLoaderWithoutConverter(t *testing.T) {
	t.Parallel()

	loader := NewLoader(nil, t.TempDir(), DefaultMinInputBytes)
	_, err := loader.Load(context.Background(), oggLikeBytes(4096), "voice.ogg")
	if KindOf(err) != KindConversion {
		t.Fatalf("expected ConversionError, got %v", err)
	}
}
