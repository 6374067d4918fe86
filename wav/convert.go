package wav

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrNoAudioStream is returned by Probe when the container has no audio track.
var ErrNoAudioStream = errors.New("no audio stream found")

// ProbeInfo is the subset of ffprobe output the loader cares about.
type ProbeInfo struct {
	FormatName string
	Codec      string
	SampleRate int
	Channels   int
	Duration   float64
}

// CheckFFmpegAvailable verifies ffmpeg and ffprobe are on PATH.
func CheckFFmpegAvailable() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

// FFmpegConverter canonicalises arbitrary containers into mono 16-bit PCM WAV.
type FFmpegConverter struct {
	// SampleRate of the converted file; zero keeps the source rate.
	SampleRate int
}

func NewFFmpegConverter(sampleRate int) *FFmpegConverter {
	return &FFmpegConverter{SampleRate: sampleRate}
}

// Probe inspects inputPath with ffprobe and describes its first audio stream.
func (c *FFmpegConverter) Probe(ctx context.Context, inputPath string) (ProbeInfo, error) {
	cmd := exec.CommandContext(ctx,
		"ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ProbeInfo{}, fmt.Errorf("ffprobe failed: %v, output %s", err, string(exitErr.Stderr))
		}
		return ProbeInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	return ParseProbeOutput(out)
}

// ParseProbeOutput extracts the first audio stream from ffprobe JSON output.
func ParseProbeOutput(out []byte) (ProbeInfo, error) {
	if !gjson.ValidBytes(out) {
		return ProbeInfo{}, errors.New("ffprobe returned malformed json")
	}

	doc := gjson.ParseBytes(out)
	stream := doc.Get(`streams.#(codec_type=="audio")`)
	if !stream.Exists() {
		return ProbeInfo{}, ErrNoAudioStream
	}

	info := ProbeInfo{
		FormatName: doc.Get("format.format_name").String(),
		Codec:      stream.Get("codec_name").String(),
		Channels:   int(stream.Get("channels").Int()),
	}

	// ffprobe reports numeric fields as strings
	if rate, err := strconv.Atoi(stream.Get("sample_rate").String()); err == nil {
		info.SampleRate = rate
	}
	duration := stream.Get("duration").String()
	if duration == "" {
		duration = doc.Get("format.duration").String()
	}
	if d, err := strconv.ParseFloat(duration, 64); err == nil {
		info.Duration = d
	}

	return info, nil
}

// ToWAV converts inputPath to a mono 16-bit PCM WAV at outputPath.
func (c *FFmpegConverter) ToWAV(ctx context.Context, inputPath, outputPath string) error {
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("input file does not exist: %w", err)
	}

	// ffmpeg cannot edit in place, write beside the target and rename
	tmpFile := filepath.Join(filepath.Dir(outputPath), "tmp_"+filepath.Base(outputPath))
	defer os.Remove(tmpFile)

	args := []string{
		"-y",
		"-v", "error",
		"-i", inputPath,
		"-vn",
		"-c:a", "pcm_s16le",
		"-ac", "1",
	}
	if c.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(c.SampleRate))
	}
	args = append(args, tmpFile)

	output, err := exec.CommandContext(ctx, "ffmpeg", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to convert to WAV: %v, output %v", err, string(output))
	}

	if err := os.Rename(tmpFile, outputPath); err != nil {
		return fmt.Errorf("failed to rename temporary file to output file: %w", err)
	}

	return nil
}
