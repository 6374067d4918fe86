package voice

import "strings"

// MoodMap folds emotion labels onto the user-facing mood categories.
type MoodMap map[string]string

func DefaultMoodMap() MoodMap {
	return MoodMap{
		"Neutral":  "Neutral",
		"Calm":     "Neutral",
		"Happy":    "Happy",
		"Surprise": "Happy",
		"Sad":      "Sad",
		"Angry":    "Angry",
		"Disgust":  "Angry",
		"Fear":     "Fear",
		"Fearful":  "Fear",
	}
}

// NewMoodMap copies entries over the defaults, dropping blank keys and values.
func NewMoodMap(entries map[string]string) MoodMap {
	m := DefaultMoodMap()
	for emotion, mood := range entries {
		emotion, mood = strings.TrimSpace(emotion), strings.TrimSpace(mood)
		if emotion == "" || mood == "" {
			continue
		}
		m[emotion] = mood
	}
	return m
}

// Resolve never returns an empty string.
func (m MoodMap) Resolve(emotion string) string {
	if mood, ok := m[emotion]; ok && mood != "" {
		return mood
	}
	return NeutralLabel
}
