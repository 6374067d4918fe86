package voice

// Emotion Classification
//
// The pretrained decision function is loaded from a JSON artifact and maps a
// standardised feature vector to a class index. Two model families are
// understood:
//
//   - "knn": labelled prototypes. The k nearest prototypes by cosine
//     distance vote for their class with weight 1/(distance+1e-9); the class
//     with the largest total weight wins, ties going to the lower index.
//   - "linear": one weight row and intercept per class (logistic regression
//     or linear SVM export); the highest score wins.
//
// Models are immutable after loading and safe for concurrent use.

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Model maps a normalised feature vector to a class index.
type Model interface {
	Predict(features []float64) int
	// Dim is the feature width the model was fitted on.
	Dim() int
}

// Prototype is one labelled reference vector of a KNN model.
type Prototype struct {
	ID       string    `json:"id,omitempty"`
	Class    int       `json:"class"`
	Features []float64 `json:"features"`
}

type modelFile struct {
	Type       string      `json:"type"`
	K          int         `json:"k,omitempty"`
	Prototypes []Prototype `json:"prototypes,omitempty"`
	Coef       [][]float64 `json:"coef,omitempty"`
	Intercept  []float64   `json:"intercept,omitempty"`
}

// LoadModel reads a model artifact and checks it matches length features.
func LoadModel(path string, length int) (Model, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	return ParseModel(data, length)
}

func ParseModel(data []byte, length int) (Model, error) {
	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse model: %w", err)
	}

	switch file.Type {
	case "knn", "":
		return NewKNNModel(file.Prototypes, file.K, length)
	case "linear":
		return NewLinearModel(file.Coef, file.Intercept, length)
	default:
		return nil, fmt.Errorf("unknown model type %q", file.Type)
	}
}

// KNNModel is a k-nearest-prototype classifier.
type KNNModel struct {
	prototypes []Prototype
	k          int
	dim        int
}

// Neighbor is one prototype ranked against a query vector.
type Neighbor struct {
	ID       string  `json:"id,omitempty"`
	Class    int     `json:"class"`
	Label    string  `json:"label,omitempty"`
	Distance float64 `json:"distance"`
	Weight   float64 `json:"weight"`
}

func NewKNNModel(prototypes []Prototype, k, length int) (*KNNModel, error) {
	if len(prototypes) == 0 {
		return nil, errors.New("model has no prototypes")
	}
	if k <= 0 {
		k = 5
	}
	if k > len(prototypes) {
		k = len(prototypes)
	}

	dim := len(prototypes[0].Features)
	copies := make([]Prototype, len(prototypes))
	for i, proto := range prototypes {
		if len(proto.Features) == 0 {
			return nil, fmt.Errorf("prototype %d (%s) has no features", i, proto.ID)
		}
		if len(proto.Features) != dim {
			return nil, fmt.Errorf("prototype %d (%s) has %d features, expected %d", i, proto.ID, len(proto.Features), dim)
		}
		if proto.Class < 0 {
			return nil, fmt.Errorf("prototype %d (%s) has negative class %d", i, proto.ID, proto.Class)
		}
		proto.Features = append([]float64(nil), proto.Features...)
		copies[i] = proto
	}
	if length > 0 && dim != length {
		return nil, fmt.Errorf("model prototypes have %d features, expected %d", dim, length)
	}

	return &KNNModel{prototypes: copies, k: k, dim: dim}, nil
}

func (m *KNNModel) Dim() int { return m.dim }

// Neighbors returns the n prototypes closest to features, nearest first.
func (m *KNNModel) Neighbors(features []float64, n int) []Neighbor {
	features = FitLength(features, m.dim)

	ranked := make([]Neighbor, len(m.prototypes))
	for i, proto := range m.prototypes {
		// cosine similarity in [-1, 1] becomes a distance in [0, 2]
		distance := 1 - cosineSimilarity(features, proto.Features)
		ranked[i] = Neighbor{
			ID:       proto.ID,
			Class:    proto.Class,
			Distance: distance,
			Weight:   1.0 / (distance + 1e-9),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})

	if n > 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Predict returns the class with the largest inverse-distance vote.
func (m *KNNModel) Predict(features []float64) int {
	votes := make(map[int]float64)
	for _, neighbor := range m.Neighbors(features, m.k) {
		votes[neighbor.Class] += neighbor.Weight
	}

	best, bestWeight := -1, math.Inf(-1)
	for class, weight := range votes {
		if weight > bestWeight+1e-12 || (math.Abs(weight-bestWeight) <= 1e-12 && class < best) {
			best, bestWeight = class, weight
		}
	}
	return best
}

func (m *KNNModel) K() int { return m.k }

// cosineSimilarity is 0 when either vector is all zeros.
func cosineSimilarity(a, b []float64) float64 {
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return floats.Dot(a, b) / (normA * normB)
}

// LinearModel scores each class with a dot product plus intercept.
type LinearModel struct {
	coef      [][]float64
	intercept []float64
	dim       int
}

func NewLinearModel(coef [][]float64, intercept []float64, length int) (*LinearModel, error) {
	if len(coef) == 0 {
		return nil, errors.New("linear model has no classes")
	}
	if len(intercept) != 0 && len(intercept) != len(coef) {
		return nil, fmt.Errorf("linear model has %d intercepts for %d classes", len(intercept), len(coef))
	}

	dim := len(coef[0])
	rows := make([][]float64, len(coef))
	for i, row := range coef {
		if len(row) != dim {
			return nil, fmt.Errorf("coef row %d has %d features, expected %d", i, len(row), dim)
		}
		rows[i] = append([]float64(nil), row...)
	}
	if length > 0 && dim != length {
		return nil, fmt.Errorf("linear model has %d features, expected %d", dim, length)
	}

	bias := make([]float64, len(coef))
	copy(bias, intercept)

	return &LinearModel{coef: rows, intercept: bias, dim: dim}, nil
}

func (m *LinearModel) Dim() int { return m.dim }

func (m *LinearModel) Predict(features []float64) int {
	features = FitLength(features, m.dim)

	best, bestScore := 0, math.Inf(-1)
	for class, row := range m.coef {
		score := floats.Dot(row, features) + m.intercept[class]
		if score > bestScore {
			best, bestScore = class, score
		}
	}
	return best
}

// EmotionClassifier resolves model output through the label table.
type EmotionClassifier struct {
	model  Model
	labels LabelTable
}

func NewEmotionClassifier(model Model, labels LabelTable) *EmotionClassifier {
	return &EmotionClassifier{model: model, labels: labels}
}

// Classify returns the emotion name for a normalised vector.
func (c *EmotionClassifier) Classify(normalized []float64) string {
	if c == nil || c.model == nil {
		return NeutralLabel
	}
	return c.labels.Name(c.model.Predict(normalized))
}
