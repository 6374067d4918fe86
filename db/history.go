package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-mood/config"
	"voice-mood/models"
)

const DefaultHistoryLimit = 20

var ErrInvalidRecord = errors.New("invalid history record")

// HistoryStore persists voice analyses and questionnaire results per user.
type HistoryStore interface {
	SaveAnalysis(ctx context.Context, analysis *models.VoiceAnalysis) error
	// ListAnalyses returns at most limit records for email, newest first.
	ListAnalyses(ctx context.Context, email string, limit int) ([]models.VoiceAnalysis, error)
	SaveMentalResult(ctx context.Context, result *models.MentalHealthResult) error
	// ListMentalResults returns at most limit results for email, newest first.
	ListMentalResults(ctx context.Context, email string, limit int) ([]models.MentalHealthResult, error)
	Close() error
}

// NewHistoryStore opens the backend selected by cfg.Backend.
func NewHistoryStore(ctx context.Context, cfg config.History) (HistoryStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		client, err := NewSQLiteClient(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "mongo", "mongodb":
		client, err := NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "json":
		return NewJSONFileStore(cfg.JSONPath), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

// prepareRecord validates a record and fills the timestamp.
func prepareRecord(analysis *models.VoiceAnalysis) error {
	if analysis == nil {
		return ErrInvalidRecord
	}
	return stampOwned(analysis.UserEmail, &analysis.Timestamp)
}

func prepareMentalResult(result *models.MentalHealthResult) error {
	if result == nil {
		return ErrInvalidRecord
	}
	return stampOwned(result.UserEmail, &result.Timestamp)
}

// stampOwned requires an owner and stores the timestamp in UTC so that every
// backend orders records by instant, whatever offset the client sent.
func stampOwned(email string, ts *time.Time) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: userEmail is required", ErrInvalidRecord)
	}
	if ts.IsZero() {
		*ts = time.Now()
	}
	*ts = ts.UTC()
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
