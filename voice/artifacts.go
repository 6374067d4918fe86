package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdobak/go-xerrors"

	"voice-mood/utils"
)

// ArtifactPaths locates the pretrained files on disk.
type ArtifactPaths struct {
	Model  string
	Scaler string
	Labels string
}

// Artifacts is the process-wide, read-only classification context. It is
// built once at startup and never mutated afterwards.
type Artifacts struct {
	normalizer Normalizer
	classifier *EmotionClassifier
	moods      MoodMap
	fault      error
}

// NewArtifacts assembles a usable context from already loaded parts.
func NewArtifacts(model Model, scaler *FeatureScaler, labels LabelTable, moods MoodMap, length int) *Artifacts {
	if moods == nil {
		moods = DefaultMoodMap()
	}
	if length <= 0 {
		length = DefaultFeatureLength
	}
	a := &Artifacts{
		normalizer: Normalizer{Length: length, Scaler: scaler},
		moods:      moods,
	}
	if model == nil || scaler == nil || len(labels) == 0 {
		a.fault = errors.New("classification artifacts incomplete")
		return a
	}
	a.classifier = NewEmotionClassifier(model, labels)
	return a
}

// DegradedArtifacts returns a context that always classifies as Neutral.
func DegradedArtifacts(moods MoodMap, cause error) *Artifacts {
	if moods == nil {
		moods = DefaultMoodMap()
	}
	if cause == nil {
		cause = errors.New("classification artifacts unavailable")
	}
	return &Artifacts{
		normalizer: Normalizer{Length: DefaultFeatureLength},
		moods:      moods,
		fault:      newError(KindConfigFault, "emotion model unavailable", cause),
	}
}

// LoadArtifacts never fails: any missing or corrupt file puts the context in
// degraded mode and the cause is logged.
func LoadArtifacts(ctx context.Context, paths ArtifactPaths, length int, moods MoodMap) *Artifacts {
	logger := utils.GetLogger()
	if length <= 0 {
		length = DefaultFeatureLength
	}

	scaler, err := LoadFeatureScaler(paths.Scaler, length)
	if err != nil {
		return degradedWithLog(ctx, logger, moods, fmt.Errorf("scaler %s: %w", paths.Scaler, err))
	}
	model, err := LoadModel(paths.Model, length)
	if err != nil {
		return degradedWithLog(ctx, logger, moods, fmt.Errorf("model %s: %w", paths.Model, err))
	}
	labels, err := LoadLabelTable(paths.Labels)
	if err != nil {
		return degradedWithLog(ctx, logger, moods, fmt.Errorf("labels %s: %w", paths.Labels, err))
	}

	logger.InfoContext(ctx, "emotion model loaded",
		slog.Int("featureLength", length),
		slog.Int("labels", len(labels)),
	)
	return NewArtifacts(model, scaler, labels, moods, length)
}

func degradedWithLog(ctx context.Context, logger *slog.Logger, moods MoodMap, cause error) *Artifacts {
	logger.ErrorContext(ctx, "emotion model unavailable, serving Neutral only",
		slog.Any("error", xerrors.New(cause)),
	)
	return DegradedArtifacts(moods, cause)
}

// Degraded reports whether emotion classification is disabled.
func (a *Artifacts) Degraded() bool { return a == nil || a.classifier == nil }

// Fault is the startup error behind degraded mode, nil otherwise.
func (a *Artifacts) Fault() error {
	if a == nil {
		return errors.New("no artifacts")
	}
	return a.fault
}

func (a *Artifacts) FeatureLength() int { return a.normalizer.Length }

func (a *Artifacts) Moods() MoodMap { return a.moods }

// Classify normalises features and resolves the emotion label.
func (a *Artifacts) Classify(features []float64) string {
	if a.Degraded() {
		return NeutralLabel
	}
	return a.classifier.Classify(a.normalizer.Normalize(features))
}

// readArtifact reads path, or its ".example" sibling when path is missing
// (models/scaler.json -> models/scaler.example.json).
func readArtifact(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("no artifact path configured")
	}
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	ext := filepath.Ext(path)
	example := strings.TrimSuffix(path, ext) + ".example" + ext
	data, exampleErr := os.ReadFile(example)
	if exampleErr != nil {
		return nil, err
	}
	return data, nil
}
