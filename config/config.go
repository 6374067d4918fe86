package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"voice-mood/utils"
)

type Server struct {
	Port      string `yaml:"port"`
	Protocol  string `yaml:"protocol"`
	StaticDir string `yaml:"static_dir"`
	CertFile  string `yaml:"cert_file"`
	CertKey   string `yaml:"cert_key"`
}

type Analysis struct {
	MinInputBytes       int     `yaml:"min_input_bytes"`
	MinDurationSeconds  float64 `yaml:"min_duration_seconds"`
	FeatureLength       int     `yaml:"feature_length"`
	FrameSize           int     `yaml:"frame_size"`
	HopSize             int     `yaml:"hop_size"`
	PitchFallbackHz     float64 `yaml:"pitch_fallback_hz"`
	PitchThreshold      float64 `yaml:"pitch_threshold"`
	PitchMinHz          float64 `yaml:"pitch_min_hz"`
	PitchMaxHz          float64 `yaml:"pitch_max_hz"`
	CanonicalSampleRate int     `yaml:"canonical_sample_rate"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	ScratchDir          string  `yaml:"scratch_dir"`
	MaxUploadBytes      int64   `yaml:"max_upload_bytes"`
}

type Artifacts struct {
	Model  string `yaml:"model"`
	Scaler string `yaml:"scaler"`
	Labels string `yaml:"labels"`
}

type History struct {
	Backend    string `yaml:"backend"` // sqlite | mongo | json | none
	SQLitePath string `yaml:"sqlite_path"`
	MongoURI   string `yaml:"mongo_uri"`
	MongoDB    string `yaml:"mongo_database"`
	JSONPath   string `yaml:"json_path"`
	Limit      int    `yaml:"limit"`
}

type Recommend struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"-"`
}

// DefaultJWTSecret is only meant for local development; tokens signed with it
// can be forged by anyone.
const DefaultJWTSecret = "your_app_secret"

type Root struct {
	Server    Server            `yaml:"server"`
	Analysis  Analysis          `yaml:"analysis"`
	Artifacts Artifacts         `yaml:"artifacts"`
	Moods     map[string]string `yaml:"moods"`
	History   History           `yaml:"history"`
	Recommend Recommend         `yaml:"recommend"`
	JWTSecret string            `yaml:"-"`
}

func Default() *Root {
	return &Root{
		Server: Server{
			Port:      "5001",
			Protocol:  "http",
			StaticDir: "static",
		},
		Analysis: Analysis{
			MinInputBytes:       1000,
			MinDurationSeconds:  0.1,
			FeatureLength:       34,
			FrameSize:           2048,
			HopSize:             512,
			PitchFallbackHz:     150.0,
			PitchThreshold:      0.1,
			PitchMinHz:          75,
			PitchMaxHz:          4000,
			CanonicalSampleRate: 44100,
			TimeoutSeconds:      60,
			ScratchDir:          "tmp",
			MaxUploadBytes:      32 << 20,
		},
		Artifacts: Artifacts{
			Model:  filepath.Join("models", "emotion_model.json"),
			Scaler: filepath.Join("models", "scaler.json"),
			Labels: filepath.Join("models", "labels.json"),
		},
		History: History{
			Backend:    "sqlite",
			SQLitePath: filepath.Join("db", "db.sqlite3"),
			MongoDB:    "voice_mood",
			JSONPath:   filepath.Join("db", "voice_analyses.json"),
			Limit:      20,
		},
		Recommend: Recommend{
			Enabled: true,
			Model:   "gemini-2.5-flash",
		},
	}
}

// Load reads config/<CONFIG_ENV>/config.yaml over the defaults and then
// applies environment overrides. A missing file is not an error.
func Load() (*Root, error) {
	env := utils.GetEnv("CONFIG_ENV", "dev")
	path := utils.GetEnv("CONFIG_FILE", filepath.Join("config", env, "config.yaml"))
	return LoadFile(path)
}

func LoadFile(path string) (*Root, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Root) applyEnv() {
	c.Server.Port = utils.GetEnv("PORT", c.Server.Port)
	c.Server.StaticDir = utils.GetEnv("STATIC_DIR", c.Server.StaticDir)
	c.Server.CertFile = utils.GetEnv("CERT_FILE", c.Server.CertFile)
	c.Server.CertKey = utils.GetEnv("CERT_KEY", c.Server.CertKey)

	c.Analysis.FeatureLength = utils.GetEnvInt("FEATURE_LENGTH", c.Analysis.FeatureLength)
	c.Analysis.PitchFallbackHz = utils.GetEnvFloat("PITCH_FALLBACK_HZ", c.Analysis.PitchFallbackHz)
	c.Analysis.TimeoutSeconds = utils.GetEnvInt("ANALYSIS_TIMEOUT_SECONDS", c.Analysis.TimeoutSeconds)
	c.Analysis.ScratchDir = utils.GetEnv("SCRATCH_DIR", c.Analysis.ScratchDir)

	c.Artifacts.Model = utils.GetEnv("MODEL_PATH", c.Artifacts.Model)
	c.Artifacts.Scaler = utils.GetEnv("SCALER_PATH", c.Artifacts.Scaler)
	c.Artifacts.Labels = utils.GetEnv("LABELS_PATH", c.Artifacts.Labels)

	c.History.Backend = utils.GetEnv("HISTORY_BACKEND", c.History.Backend)
	c.History.SQLitePath = utils.GetEnv("SQLITE_PATH", c.History.SQLitePath)
	c.History.MongoURI = utils.GetEnv("MONGODB_URI", c.History.MongoURI)
	c.History.MongoDB = utils.GetEnv("MONGODB_DATABASE", c.History.MongoDB)
	c.History.JSONPath = utils.GetEnv("HISTORY_JSON_PATH", c.History.JSONPath)

	c.Recommend.APIKey = utils.GetEnv("GEMINI_API_KEY", c.Recommend.APIKey)
	c.Recommend.Model = utils.GetEnv("GEMINI_MODEL", c.Recommend.Model)

	c.JWTSecret = utils.GetEnv("JWT_SECRET", DefaultJWTSecret)
}

// Timeout is the per-request analysis budget; zero disables it.
func (a Analysis) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// UsesDefaultJWTSecret reports whether JWT_SECRET was left unset.
func (c *Root) UsesDefaultJWTSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}
