package voice

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"voice-mood/wav"
)

func sineWave(freq float64, sampleRate int, seconds, amplitude float64) []float64 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return samples
}

// clickTrain places a unit impulse every period samples.
func clickTrain(sampleRate int, seconds float64, period int) []float64 {
	samples := make([]float64, int(seconds*float64(sampleRate)))
	for i := 0; i < len(samples); i += period {
		samples[i] = 1.0
	}
	return samples
}

func wavBytes(t *testing.T, samples []float64, sampleRate int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := wav.WriteWavFile(path, samples, sampleRate); err != nil {
		t.Fatalf("WriteWavFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return data
}

// fakeConverter stands in for ffmpeg. When output is set, ToWAV writes it as
// the canonical file.
type fakeConverter struct {
	probeErr   error
	convertErr error
	output     []float64
	sampleRate int

	probeCalls   atomic.Int32
	convertCalls atomic.Int32
	lastInput    atomic.Value
}

func (f *fakeConverter) Probe(_ context.Context, inputPath string) (wav.ProbeInfo, error) {
	f.probeCalls.Add(1)
	f.lastInput.Store(inputPath)
	if f.probeErr != nil {
		return wav.ProbeInfo{}, f.probeErr
	}
	return wav.ProbeInfo{FormatName: "ogg", Codec: "opus", SampleRate: f.sampleRate, Channels: 1}, nil
}

func (f *fakeConverter) ToWAV(_ context.Context, inputPath, outputPath string) error {
	f.convertCalls.Add(1)
	if f.convertErr != nil {
		return f.convertErr
	}
	return wav.WriteWavFile(outputPath, f.output, f.sampleRate)
}

// identityScaler leaves features unchanged apart from width reconciliation.
func identityScaler(length int) *FeatureScaler {
	scaler := &FeatureScaler{Mean: make([]float64, length), Stddev: make([]float64, length)}
	for i := range scaler.Stddev {
		scaler.Stddev[i] = 1
	}
	return scaler
}

// constantModel always predicts class.
type constantModel struct {
	class int
	dim   int
}

func (m constantModel) Predict([]float64) int { return m.class }
func (m constantModel) Dim() int              { return m.dim }

func newTestArtifacts(class int) *Artifacts {
	labels := LabelTable{"Neutral", "Happy", "Sad", "Angry", "Fear"}
	return NewArtifacts(constantModel{class: class, dim: DefaultFeatureLength},
		identityScaler(DefaultFeatureLength), labels, DefaultMoodMap(), DefaultFeatureLength)
}

func newTestPipeline(converter Converter, artifacts *Artifacts, scratch string) *Pipeline {
	loader := NewLoader(converter, scratch, DefaultMinInputBytes)
	return NewPipeline(loader, NewSignalAnalyzer(), artifacts, DefaultPipelineConfig())
}
