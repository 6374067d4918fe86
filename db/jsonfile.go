package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-mood/models"
	"voice-mood/utils"
)

// JSONFileStore keeps each record kind in its own JSON array on disk:
// analyses at path, questionnaire results next to it with a "_mental" suffix.
type JSONFileStore struct {
	path       string
	mentalPath string
	mu         sync.RWMutex
}

func NewJSONFileStore(path string) *JSONFileStore {
	if path == "" {
		path = filepath.Join("db", "voice_analyses.json")
	}
	ext := filepath.Ext(path)
	return &JSONFileStore{
		path:       path,
		mentalPath: strings.TrimSuffix(path, ext) + "_mental" + ext,
	}
}

// readRecords reads all records in path (caller holds the lock)
func readRecords[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading history file: %v", err)
	}
	if len(data) == 0 {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("error unmarshaling history: %v", err)
	}
	return records, nil
}

// writeRecords replaces path (caller holds the lock)
func writeRecords[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling history: %v", err)
	}

	// write then rename so readers never see a half-written file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing history file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error replacing history file: %v", err)
	}
	return nil
}

// newestFirst keeps the records owned by email, newest first, at most limit.
func newestFirst[T any](all []T, email string, limit int, owner func(T) string, stamp func(T) time.Time) []T {
	// walk backwards so later insertions win timestamp ties
	matched := []T{}
	for i := len(all) - 1; i >= 0; i-- {
		if owner(all[i]) == email {
			matched = append(matched, all[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return stamp(matched[i]).After(stamp(matched[j]))
	})

	if limit = normalizeLimit(limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (s *JSONFileStore) SaveAnalysis(_ context.Context, analysis *models.VoiceAnalysis) error {
	if err := prepareRecord(analysis); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	analyses, err := readRecords[models.VoiceAnalysis](s.path)
	if err != nil {
		return err
	}
	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	return writeRecords(s.path, append(analyses, *analysis))
}

func (s *JSONFileStore) ListAnalyses(_ context.Context, email string, limit int) ([]models.VoiceAnalysis, error) {
	s.mu.RLock()
	all, err := readRecords[models.VoiceAnalysis](s.path)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	return newestFirst(all, email, limit,
		func(a models.VoiceAnalysis) string { return a.UserEmail },
		func(a models.VoiceAnalysis) time.Time { return a.Timestamp },
	), nil
}

func (s *JSONFileStore) SaveMentalResult(_ context.Context, result *models.MentalHealthResult) error {
	if err := prepareMentalResult(result); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := readRecords[models.MentalHealthResult](s.mentalPath)
	if err != nil {
		return err
	}
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	return writeRecords(s.mentalPath, append(results, *result))
}

func (s *JSONFileStore) ListMentalResults(_ context.Context, email string, limit int) ([]models.MentalHealthResult, error) {
	s.mu.RLock()
	all, err := readRecords[models.MentalHealthResult](s.mentalPath)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	return newestFirst(all, email, limit,
		func(r models.MentalHealthResult) string { return r.UserEmail },
		func(r models.MentalHealthResult) time.Time { return r.Timestamp },
	), nil
}

func (s *JSONFileStore) Close() error { return nil }
