package voice

import (
	"context"

	"voice-mood/config"
	"voice-mood/wav"
)

// NewPipelineFromConfig wires the loader, analyzer and artifacts described
// by cfg. Artifact problems put the pipeline in degraded mode; they are not
// returned.
func NewPipelineFromConfig(ctx context.Context, cfg *config.Root) *Pipeline {
	a := cfg.Analysis

	loader := NewLoader(wav.NewFFmpegConverter(a.CanonicalSampleRate), a.ScratchDir, a.MinInputBytes)

	analyzer := NewSignalAnalyzer()
	if a.PitchFallbackHz > 0 {
		analyzer.PitchFallbackHz = a.PitchFallbackHz
	}
	if a.PitchThreshold > 0 {
		analyzer.PitchThreshold = a.PitchThreshold
	}
	if a.PitchMinHz > 0 && a.PitchMaxHz > a.PitchMinHz {
		analyzer.PitchMinHz = a.PitchMinHz
		analyzer.PitchMaxHz = a.PitchMaxHz
	}

	artifacts := LoadArtifacts(ctx, ArtifactPaths{
		Model:  cfg.Artifacts.Model,
		Scaler: cfg.Artifacts.Scaler,
		Labels: cfg.Artifacts.Labels,
	}, a.FeatureLength, NewMoodMap(cfg.Moods))

	return NewPipeline(loader, analyzer, artifacts, PipelineConfig{
		MinDuration: a.MinDurationSeconds,
		FrameSize:   a.FrameSize,
		HopSize:     a.HopSize,
		Timeout:     a.Timeout(),
	})
}
