package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"voice-mood/models"
	"voice-mood/utils"
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" && dbPath != ":memory:" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createAnalysesTable := `
    CREATE TABLE IF NOT EXISTS voice_analyses (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_email TEXT NOT NULL,
        pitch REAL NOT NULL DEFAULT 0,
        speed REAL NOT NULL DEFAULT 0,
        emotion TEXT NOT NULL,
        mood TEXT NOT NULL,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_voice_analyses_user ON voice_analyses(user_email, timestamp);
    `

	createMentalResultsTable := `
    CREATE TABLE IF NOT EXISTS mental_results (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_email TEXT NOT NULL,
        answers TEXT NOT NULL DEFAULT '{}',
        depression_score REAL NOT NULL DEFAULT 0,
        anxiety_score REAL NOT NULL DEFAULT 0,
        stress_score REAL NOT NULL DEFAULT 0,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_mental_results_user ON mental_results(user_email, timestamp);
    `

	if _, err := db.Exec(createAnalysesTable); err != nil {
		return fmt.Errorf("error creating voice_analyses table: %s", err)
	}
	if _, err := db.Exec(createMentalResultsTable); err != nil {
		return fmt.Errorf("error creating mental_results table: %s", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// SaveAnalysis stores analysis and sets its ID
func (db *SQLiteClient) SaveAnalysis(ctx context.Context, analysis *models.VoiceAnalysis) error {
	if err := prepareRecord(analysis); err != nil {
		return err
	}

	res, err := db.db.ExecContext(ctx, `
		INSERT INTO voice_analyses (user_email, pitch, speed, emotion, mood, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		analysis.UserEmail,
		analysis.Pitch,
		analysis.Speed,
		analysis.Emotion,
		analysis.Mood,
		// text timestamps only sort by instant when they share an offset
		analysis.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error storing voice analysis: %s", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading inserted id: %s", err)
	}
	analysis.ID = strconv.FormatInt(id, 10)
	return nil
}

func (db *SQLiteClient) ListAnalyses(ctx context.Context, email string, limit int) ([]models.VoiceAnalysis, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_email, pitch, speed, emotion, mood, timestamp
		FROM voice_analyses
		WHERE user_email = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, email, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying voice analyses: %s", err)
	}
	defer rows.Close()

	analyses := []models.VoiceAnalysis{}
	for rows.Next() {
		var (
			a  models.VoiceAnalysis
			id int64
		)
		err := rows.Scan(&id, &a.UserEmail, &a.Pitch, &a.Speed, &a.Emotion, &a.Mood, &a.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("error scanning voice analysis: %s", err)
		}
		a.ID = strconv.FormatInt(id, 10)
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading voice analyses: %s", err)
	}

	return analyses, nil
}

// SaveMentalResult stores result and sets its ID
func (db *SQLiteClient) SaveMentalResult(ctx context.Context, result *models.MentalHealthResult) error {
	if err := prepareMentalResult(result); err != nil {
		return err
	}

	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("error encoding answers: %s", err)
	}

	res, err := db.db.ExecContext(ctx, `
		INSERT INTO mental_results (user_email, answers, depression_score, anxiety_score, stress_score, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		result.UserEmail,
		string(answers),
		result.DepressionScore,
		result.AnxietyScore,
		result.StressScore,
		result.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error storing mental health result: %s", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading inserted id: %s", err)
	}
	result.ID = strconv.FormatInt(id, 10)
	return nil
}

func (db *SQLiteClient) ListMentalResults(ctx context.Context, email string, limit int) ([]models.MentalHealthResult, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_email, answers, depression_score, anxiety_score, stress_score, timestamp
		FROM mental_results
		WHERE user_email = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, email, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("error querying mental health results: %s", err)
	}
	defer rows.Close()

	results := []models.MentalHealthResult{}
	for rows.Next() {
		var (
			r       models.MentalHealthResult
			id      int64
			answers string
		)
		err := rows.Scan(&id, &r.UserEmail, &answers, &r.DepressionScore, &r.AnxietyScore, &r.StressScore, &r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("error scanning mental health result: %s", err)
		}
		if answers != "" && answers != "null" {
			if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
				return nil, fmt.Errorf("error decoding answers: %s", err)
			}
		}
		r.ID = strconv.FormatInt(id, 10)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading mental health results: %s", err)
	}

	return results, nil
}
