package voice

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mdobak/go-xerrors"

	"voice-mood/utils"
)

// AnalysisResult is the response of a single analysis.
type AnalysisResult struct {
	Pitch   float64 `json:"pitch"`
	Speed   float64 `json:"speed"`
	Emotion string  `json:"emotion"`
	Mood    string  `json:"mood"`
}

type PipelineConfig struct {
	MinDuration float64 // seconds
	FrameSize   int
	HopSize     int
	Timeout     time.Duration // zero disables the per-request deadline
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinDuration: DefaultMinDuration,
		FrameSize:   DefaultFrameSize,
		HopSize:     DefaultHopSize,
	}
}

// Pipeline runs load -> (pitch/tempo || features -> emotion -> mood).
type Pipeline struct {
	loader    *Loader
	analyzer  *SignalAnalyzer
	artifacts *Artifacts
	cfg       PipelineConfig
	logger    *slog.Logger
}

func NewPipeline(loader *Loader, analyzer *SignalAnalyzer, artifacts *Artifacts, cfg PipelineConfig) *Pipeline {
	if analyzer == nil {
		analyzer = NewSignalAnalyzer()
	}
	if artifacts == nil {
		artifacts = DegradedArtifacts(nil, nil)
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.HopSize <= 0 {
		cfg.HopSize = DefaultHopSize
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	return &Pipeline{
		loader:    loader,
		analyzer:  analyzer,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    utils.GetLogger(),
	}
}

func (p *Pipeline) Artifacts() *Artifacts { return p.artifacts }

// Analyze decodes data and analyses it. Only loader failures are returned as
// errors; feature problems degrade the emotion to Neutral.
func (p *Pipeline) Analyze(ctx context.Context, data []byte, filename string) (result *AnalysisResult, err error) {
	defer p.recoverInternal(ctx, &err)

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	if p.loader == nil {
		return nil, newError(KindInternal, "audio loader not configured", nil)
	}
	audio, err := p.loader.Load(ctx, data, filename)
	if err != nil {
		return nil, err
	}
	return p.AnalyzeAudio(ctx, audio)
}

// AnalyzeAudio runs both branches over an already decoded waveform.
func (p *Pipeline) AnalyzeAudio(ctx context.Context, audio *RawAudio) (result *AnalysisResult, err error) {
	defer p.recoverInternal(ctx, &err)

	if audio == nil || len(audio.Samples) == 0 {
		return nil, newError(KindDecode, "audio contains no samples", nil)
	}

	res := &AnalysisResult{
		Pitch:   p.analyzer.PitchFallbackHz,
		Speed:   0,
		Emotion: NeutralLabel,
	}

	if audio.Duration < p.cfg.MinDuration {
		p.logger.WarnContext(ctx, "clip too short for analysis",
			slog.Float64("duration", audio.Duration),
			slog.Float64("minDuration", p.cfg.MinDuration),
		)
		res.Mood = p.artifacts.Moods().Resolve(res.Emotion)
		return res, nil
	}

	spec, err := ComputeSpectrogram(ctx, audio.Samples, audio.SampleRate, p.cfg.FrameSize, p.cfg.HopSize)
	if err != nil {
		return nil, newError(KindInternal, "analysis interrupted", err)
	}

	var (
		wg      sync.WaitGroup
		pitch   float64
		tempo   float64
		emotion = NeutralLabel
		panics  = make(chan any, 1)
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer capturePanic(panics)
		pitch, tempo = p.analyzer.Analyze(spec)
	}()
	go func() {
		defer wg.Done()
		defer p.recoverFeatureBranch(ctx, &emotion)
		emotion = p.classify(ctx, audio, spec)
	}()
	wg.Wait()
	close(panics)

	if r, ok := <-panics; ok {
		panic(r)
	}

	res.Pitch = pitch
	res.Speed = tempo
	res.Emotion = emotion
	res.Mood = p.artifacts.Moods().Resolve(emotion)
	return res, nil
}

func (p *Pipeline) classify(ctx context.Context, audio *RawAudio, spec *Spectrogram) string {
	if p.artifacts.Degraded() {
		return NeutralLabel
	}

	features, err := ExtractFeatureVector(ctx, audio, spec, p.cfg.MinDuration)
	if err != nil {
		p.logger.WarnContext(ctx, "feature extraction failed, emotion defaults to Neutral",
			slog.Any("error", err),
		)
		return NeutralLabel
	}
	return p.artifacts.Classify(features)
}

// recoverFeatureBranch keeps a classifier fault local to the feature branch:
// the signal values still reach the caller and the emotion is Neutral.
func (p *Pipeline) recoverFeatureBranch(ctx context.Context, emotion *string) {
	r := recover()
	if r == nil {
		return
	}
	p.logger.ErrorContext(ctx, "panic in feature branch, emotion defaults to Neutral",
		slog.Any("error", xerrors.New(panicCause(r))),
		slog.String("stack", string(debug.Stack())),
	)
	*emotion = NeutralLabel
}

func panicCause(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

func capturePanic(ch chan<- any) {
	if r := recover(); r != nil {
		ch <- r
	}
}

func (p *Pipeline) recoverInternal(ctx context.Context, err *error) {
	r := recover()
	if r == nil {
		return
	}
	cause := panicCause(r)
	p.logger.ErrorContext(ctx, "panic during analysis",
		slog.Any("error", xerrors.New(cause)),
		slog.String("stack", string(debug.Stack())),
	)
	*err = newError(KindInternal, "internal server error", cause)
}
