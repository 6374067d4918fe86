package voice

import (
	"context"
)

// FeatureValue pairs a named feature with its raw and normalised value.
type FeatureValue struct {
	Name       string  `json:"name"`
	Raw        float64 `json:"raw"`
	Normalized float64 `json:"normalized"`
}

// Explanation is the full decision trail behind one AnalysisResult.
type Explanation struct {
	Duration   float64        `json:"duration"`
	SampleRate int            `json:"sampleRate"`
	Pitch      float64        `json:"pitch"`
	Speed      float64        `json:"speed"`
	Features   []FeatureValue `json:"features"`
	Emotion    string         `json:"emotion"`
	Mood       string         `json:"mood"`
	Degraded   bool           `json:"degraded"`
	// Neighbors is only filled for knn models.
	Neighbors []Neighbor `json:"neighbors,omitempty"`
}

// Explain normalises features and reports how the classifier decided.
func (a *Artifacts) Explain(features []float64, neighbors int) *Explanation {
	normalized := a.normalizer.Normalize(features)
	names := FeatureNames()

	exp := &Explanation{
		Features: make([]FeatureValue, len(normalized)),
		Emotion:  a.Classify(features),
		Degraded: a.Degraded(),
	}
	exp.Mood = a.moods.Resolve(exp.Emotion)

	for i, v := range normalized {
		fv := FeatureValue{Normalized: v}
		if i < len(names) {
			fv.Name = names[i]
		} else {
			fv.Name = "padding"
		}
		if i < len(features) {
			fv.Raw = features[i]
		}
		exp.Features[i] = fv
	}

	if a.Degraded() {
		return exp
	}
	if knn, ok := a.classifier.model.(*KNNModel); ok {
		if neighbors <= 0 {
			neighbors = knn.K()
		}
		exp.Neighbors = knn.Neighbors(normalized, neighbors)
		for i := range exp.Neighbors {
			exp.Neighbors[i].Label = a.classifier.labels.Name(exp.Neighbors[i].Class)
		}
	}
	return exp
}

// Explain runs the same stages as Analyze but keeps the intermediate values.
// Unlike Analyze, feature extraction errors are returned.
func (p *Pipeline) Explain(ctx context.Context, data []byte, filename string, neighbors int) (exp *Explanation, err error) {
	defer p.recoverInternal(ctx, &err)

	if p.loader == nil {
		return nil, newError(KindInternal, "audio loader not configured", nil)
	}
	audio, err := p.loader.Load(ctx, data, filename)
	if err != nil {
		return nil, err
	}

	spec, err := ComputeSpectrogram(ctx, audio.Samples, audio.SampleRate, p.cfg.FrameSize, p.cfg.HopSize)
	if err != nil {
		return nil, newError(KindInternal, "analysis interrupted", err)
	}

	features, err := ExtractFeatureVector(ctx, audio, spec, p.cfg.MinDuration)
	if err != nil {
		return nil, newError(KindExtractionFailed, "unable to extract features", err)
	}

	exp = p.artifacts.Explain(features, neighbors)
	exp.Duration = audio.Duration
	exp.SampleRate = audio.SampleRate
	exp.Pitch, exp.Speed = p.analyzer.Analyze(spec)
	return exp, nil
}
