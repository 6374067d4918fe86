package voice

// Feature Scaling
//
// The classifier was fitted on z-scored features of a fixed width. Live
// vectors are first reconciled to that width (zero padding or truncation on
// the right) and then standardised with the stored per-feature mean and
// standard deviation. Width drift between the extractor and the artifacts is
// expected and never an error.

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FeatureScaler standardises features with z-score normalisation.
type FeatureScaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// LoadFeatureScaler reads a scaler from JSON and validates it against length.
func LoadFeatureScaler(path string, length int) (*FeatureScaler, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}

	var scaler FeatureScaler
	if err := json.Unmarshal(data, &scaler); err != nil {
		return nil, fmt.Errorf("unable to parse scaler: %w", err)
	}
	if err := scaler.validate(length); err != nil {
		return nil, err
	}
	return &scaler, nil
}

func (fs *FeatureScaler) validate(length int) error {
	if len(fs.Mean) == 0 {
		return errors.New("scaler has no features")
	}
	if len(fs.Mean) != len(fs.Stddev) {
		return fmt.Errorf("scaler mean/stddev length mismatch: %d vs %d", len(fs.Mean), len(fs.Stddev))
	}
	if length > 0 && len(fs.Mean) != length {
		return fmt.Errorf("scaler has %d features, expected %d", len(fs.Mean), length)
	}
	for i := range fs.Stddev {
		// constant features would otherwise divide by zero
		if fs.Stddev[i] < 1e-10 {
			fs.Stddev[i] = 1.0
		}
	}
	return nil
}

// Transform applies z-score standardisation. Vectors of the wrong width are
// reconciled first so the result always has len(fs.Mean) elements.
func (fs *FeatureScaler) Transform(features []float64) []float64 {
	fitted := FitLength(features, len(fs.Mean))
	for i, val := range fitted {
		fitted[i] = (val - fs.Mean[i]) / fs.Stddev[i]
	}
	return fitted
}

// FitLength returns a copy of v with exactly n elements: trailing zeros are
// appended when v is short and trailing elements dropped when it is long.
func FitLength(v []float64, n int) []float64 {
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	copy(out, v)
	return out
}

// Normalizer reconciles vector width and applies the scaler.
type Normalizer struct {
	Length int
	Scaler *FeatureScaler // nil means width reconciliation only
}

func (n Normalizer) Normalize(features []float64) []float64 {
	fitted := FitLength(features, n.Length)
	if n.Scaler == nil {
		return fitted
	}
	return n.Scaler.Transform(fitted)
}
