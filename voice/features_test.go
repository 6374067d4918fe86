package voice

import (
	"context"
	"errors"
	"math"
	"testing"
)

func extract(t *testing.T, samples []float64, sampleRate int) ([]float64, error) {
	t.Helper()
	audio := newRawAudio(samples, sampleRate)
	spec, err := ComputeSpectrogram(context.Background(), samples, sampleRate, DefaultFrameSize, DefaultHopSize)
	if err != nil {
		t.Fatalf("ComputeSpectrogram: %v", err)
	}
	return ExtractFeatureVector(context.Background(), audio, spec, DefaultMinDuration)
}

func TestFeatureNamesMatchExtractedLength(t *testing.T) {
	t.Parallel()

	names := FeatureNames()
	if len(names) != ExtractedFeatureCount {
		t.Fatalf("expected %d feature names, got %d", ExtractedFeatureCount, len(names))
	}
	if names[0] != "mfcc_1" || names[13] != "spectral_centroid" || names[16] != "chroma_C" || names[27] != "chroma_B" {
		t.Fatalf("unexpected feature layout: %v", names)
	}
}

func TestExtractFeatureVectorLengthIndependentOfDuration(t *testing.T) {
	t.Parallel()

	for _, seconds := range []float64{0.2, 0.5, 1, 3} {
		features, err := extract(t, sineWave(300, 22050, seconds, 0.4), 22050)
		if err != nil {
			t.Fatalf("%.1fs clip: unexpected error %v", seconds, err)
		}
		if len(features) != ExtractedFeatureCount {
			t.Fatalf("%.1fs clip: expected %d features, got %d", seconds, ExtractedFeatureCount, len(features))
		}
		for i, v := range features {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("%.1fs clip: feature %d is not finite", seconds, i)
			}
		}
	}
}

func TestExtractFeatureVectorDescribesSine(t *testing.T) {
	t.Parallel()

	features, err := extract(t, sineWave(440, 22050, 1, 0.5), 22050)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	centroid, zcr := features[13], features[15]
	if math.Abs(centroid-440) > 60 {
		t.Errorf("expected centroid near 440 Hz, got %.1f", centroid)
	}
	if zcr < 0.03 || zcr > 0.045 {
		t.Errorf("expected zero crossing rate near 0.04, got %.4f", zcr)
	}

	chroma := features[16:]
	best := 0
	for i, v := range chroma {
		if v > chroma[best] {
			best = i
		}
	}
	if best != 9 {
		t.Errorf("expected chroma peak at A (9), got %d (%v)", best, chroma)
	}
}

func TestExtractFeatureVectorRejectsShortClip(t *testing.T) {
	t.Parallel()

	_, err := extract(t, sineWave(300, 22050, 0.05, 0.4), 22050)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if KindOf(err) != KindExtractionFailed {
		t.Fatalf("expected KindExtractionFailed, got %s", KindOf(err))
	}
}

func TestExtractFeatureVectorHonoursCancellation(t *testing.T) {
	t.Parallel()

	samples := sineWave(300, 22050, 1, 0.4)
	spec, err := ComputeSpectrogram(context.Background(), samples, 22050, DefaultFrameSize, DefaultHopSize)
	if err != nil {
		t.Fatalf("ComputeSpectrogram: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ExtractFeatureVector(ctx, newRawAudio(samples, 22050), spec, DefaultMinDuration)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed after cancel, got %v", err)
	}
}

func TestMelFilterBankCoversSpectrum(t *testing.T) {
	t.Parallel()

	bank := melFilterBank(melFilterCount, DefaultFrameSize, 22050, 0, 11025)
	if len(bank) != melFilterCount {
		t.Fatalf("expected %d filters, got %d", melFilterCount, len(bank))
	}
	for i, filter := range bank {
		peak := 0.0
		for _, v := range filter {
			peak = math.Max(peak, v)
		}
		if peak <= 0 {
			t.Fatalf("filter %d is empty", i)
		}
	}
}
