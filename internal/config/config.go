package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	LLM       LLMConfig
	Auth      AuthConfig
	Payments  PaymentsConfig
	Archive   ArchiveConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	Host           string
	MaxConnections int
	BaseURL        string
	// CORSOrigins is a comma-separated list; empty allows BaseURL only.
	CORSOrigins string
}

type StorageConfig struct {
	Driver  string // "sqlite" or "postgres"
	DSN     string
	DataDir string
}

type LLMConfig struct {
	BaseURL           string
	APIKey            string
	AnalysisModel     string
	OrchestratorModel string
	AdversarialModel  string
}

type AuthConfig struct {
	SupabaseURL     string
	SupabaseAnonKey string
	AdminEmails     string
}

type PaymentsConfig struct {
	Environment    string
	APIKeyLive     string
	APIKeyTest     string
	WebhookKey     string
	DefaultProduct string
	BatchCredits   int
}

// APIKey returns the key matching the configured environment.
func (p PaymentsConfig) APIKey() string {
	if p.Environment == "live_mode" {
		return p.APIKeyLive
	}
	return p.APIKeyTest
}

type ArchiveConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

type RateLimitConfig struct {
	AnalyzeMax int
	RebutMax   int
	Window     time.Duration
}

type LogConfig struct {
	Level string
}

// Origins returns the allowed CORS origins.
func (s ServerConfig) Origins() []string {
	if strings.TrimSpace(s.CORSOrigins) == "" {
		return []string{s.BaseURL}
	}
	var out []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           3000,
			Host:           "127.0.0.1",
			MaxConnections: 256,
			BaseURL:        "http://localhost:3000",
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta/openai/",
			AnalysisModel:     "gemini-1.5-flash",
			OrchestratorModel: "gemini-1.5-flash",
			AdversarialModel:  "gemini-1.5-flash",
		},
		Payments: PaymentsConfig{
			Environment:    "test_mode",
			DefaultProduct: "p_123",
			BatchCredits:   5,
		},
		Archive: ArchiveConfig{
			Bucket: "decks",
			UseSSL: true,
		},
		RateLimit: RateLimitConfig{
			AnalyzeMax: 10,
			RebutMax:   30,
			Window:     60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration for the server. Layers, lowest to highest:
// defaults, the YAML file at $XDG_CONFIG_HOME/deckslayer/config.yaml, the
// .env file (path from DECKSLAYER_ENV_FILE, default ./.env), and the process
// environment. The generation provider key is required.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), readDotenv())
}

// LoadLocal is Load without the provider key requirement, for operator
// commands that only touch the datastore.
func LoadLocal() (Config, error) {
	return load(newFileBackend(configFilePath()), readDotenv(), false)
}

// secretSource looks up values by environment variable name.
type secretSource interface {
	Lookup(env string) (string, bool)
}

// dotenv is a parsed .env file. It never touches the process environment.
type dotenv map[string]string

func (d dotenv) Lookup(env string) (string, bool) {
	v, ok := d[env]
	return v, ok && v != ""
}

func readDotenv() dotenv {
	path := os.Getenv("DECKSLAYER_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	m, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read env file %s: %v. Ignoring it.\n", path, err)
		}
		return dotenv{}
	}
	return dotenv(m)
}

func loadWith(b ConfigBackend, s secretSource) (Config, error) {
	return load(b, s, true)
}

func load(b ConfigBackend, s secretSource, requireProvider bool) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyLookups(&cfg, s.Lookup, "env file")
	applyLookups(&cfg, processEnv, "env var")

	if requireProvider && cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: generation provider API key. " +
			"Set it via environment variable GEMINI_API_KEY (or DECKSLAYER_LLM_API_KEY) or in the .env file")
	}
	return cfg, nil
}

func processEnv(env string) (string, bool) {
	v := os.Getenv(env)
	return v, v != ""
}
