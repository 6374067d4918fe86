package models

import (
	"time"
)

// RecordData is the socket payload of a recording sent by the client.
type RecordData struct {
	Audio    string `json:"audio"` // base64
	Filename string `json:"filename"`
}

// VoiceAnalysis is a stored analysis result owned by a user
type VoiceAnalysis struct {
	ID        string    `json:"id,omitempty" bson:"-"`
	UserEmail string    `json:"userEmail" bson:"userEmail"`
	Pitch     float64   `json:"pitch" bson:"pitch"`
	Speed     float64   `json:"speed" bson:"speed"`
	Emotion   string    `json:"emotion" bson:"emotion"`
	Mood      string    `json:"mood" bson:"mood"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// MentalHealthResult is a stored questionnaire outcome owned by a user.
// Answers maps question ids to the chosen option.
type MentalHealthResult struct {
	ID              string         `json:"id,omitempty" bson:"-"`
	UserEmail       string         `json:"userEmail" bson:"userEmail"`
	Answers         map[string]int `json:"answers,omitempty" bson:"answers,omitempty"`
	DepressionScore float64        `json:"depressionScore" bson:"depressionScore"`
	AnxietyScore    float64        `json:"anxietyScore" bson:"anxietyScore"`
	StressScore     float64        `json:"stressScore" bson:"stressScore"`
	Timestamp       time.Time      `json:"timestamp" bson:"timestamp"`
}

// RecommendationRequest carries self-reported scores used to tailor advice.
type RecommendationRequest struct {
	Depression float64 `json:"depression"`
	Anxiety    float64 `json:"anxiety"`
	Stress     float64 `json:"stress"`
	Mood       string  `json:"mood"`
}

type Recommendations struct {
	Meditations  []Suggestion `json:"meditations"`
	Musics       []Suggestion `json:"musics"`
	Quotes       []string     `json:"quotes"`
	Affirmations []string     `json:"affirmations"`
	Tips         []string     `json:"tips"`
}

type Suggestion struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
