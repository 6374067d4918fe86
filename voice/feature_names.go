package voice

import "fmt"

const (
	MFCCCount   = 13
	ChromaCount = 12

	// ExtractedFeatureCount is the length of every vector the extractor emits.
	ExtractedFeatureCount = MFCCCount + 3 + ChromaCount

	// DefaultFeatureLength is the vector length the classifier artifacts expect.
	DefaultFeatureLength = 34
)

var pitchClassNames = [ChromaCount]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// FeatureNames lists the extractor output in order. Scaler and model
// artifacts are fitted against exactly this layout, so it must never be
// reordered.
func FeatureNames() []string {
	names := make([]string, 0, ExtractedFeatureCount)
	for i := 1; i <= MFCCCount; i++ {
		names = append(names, fmt.Sprintf("mfcc_%d", i))
	}
	names = append(names, "spectral_centroid", "spectral_rolloff", "zero_crossing_rate")
	for _, pc := range pitchClassNames {
		names = append(names, "chroma_"+pc)
	}
	return names
}
