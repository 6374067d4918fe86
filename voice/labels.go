package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NeutralLabel is both the fallback emotion and the fallback mood.
const NeutralLabel = "Neutral"

// LabelTable maps class indices to emotion names.
type LabelTable []string

func LoadLabelTable(path string) (LabelTable, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}

	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("unable to parse labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, errors.New("label table is empty")
	}
	for i, label := range labels {
		if strings.TrimSpace(label) == "" {
			return nil, fmt.Errorf("label %d is blank", i)
		}
	}
	return LabelTable(labels), nil
}

// Name resolves index, falling back to NeutralLabel when it is out of range.
func (t LabelTable) Name(index int) string {
	if index < 0 || index >= len(t) {
		return NeutralLabel
	}
	return t[index]
}
