package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]any

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, _ := v.(int)
	return i, true, nil
}

func (m mapBackend) SetString(key, val string) error {
	m[key] = val
	return nil
}

func (m mapBackend) SetInt(key string, val int) error {
	m[key] = val
	return nil
}

func (m mapBackend) Delete(key string) error {
	delete(m, key)
	return nil
}

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		for _, name := range s.envNames() {
			t.Setenv(name, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(mapBackend{}, dotenv{"GEMINI_API_KEY": "k"})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.LLM.AnalysisModel != "gemini-1.5-flash" {
		t.Errorf("LLM.AnalysisModel = %q, want gemini-1.5-flash", cfg.LLM.AnalysisModel)
	}
	if cfg.Payments.Environment != "test_mode" || cfg.Payments.DefaultProduct != "p_123" {
		t.Errorf("Payments = %+v", cfg.Payments)
	}
	if cfg.RateLimit.AnalyzeMax != 10 || cfg.RateLimit.RebutMax != 30 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v, want 10/30/1m", cfg.RateLimit)
	}
	if !cfg.Archive.UseSSL || cfg.Archive.Enabled() {
		t.Errorf("Archive = %+v, want SSL on and disabled", cfg.Archive)
	}
}

func TestMissingProviderKey(t *testing.T) {
	clearEnv(t)
	_, err := loadWith(mapBackend{}, dotenv{})
	if err == nil {
		t.Fatal("expected error for missing provider key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("error = %q, want missing required config naming GEMINI_API_KEY", err)
	}

	if _, err := load(mapBackend{}, dotenv{}, false); err != nil {
		t.Errorf("load(lenient) = %v, want nil", err)
	}
}

func TestLayering(t *testing.T) {
	clearEnv(t)
	b := mapBackend{
		"server.port":          5000,
		"llm.analysis_model":   "file-model",
		"ratelimit.window":     "2m",
		"payments.environment": "live_mode",
	}
	secrets := dotenv{
		"GEMINI_API_KEY":                "dotenv-key",
		"DECKSLAYER_LLM_ANALYSIS_MODEL": "dotenv-model",
		"DODO_API_KEY_LIVE":             "live-key",
	}
	t.Setenv("DECKSLAYER_LLM_ANALYSIS_MODEL", "env-model")

	cfg, err := loadWith(b, secrets)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.LLM.AnalysisModel != "env-model" {
		t.Errorf("AnalysisModel = %q, want env-model", cfg.LLM.AnalysisModel)
	}
	if cfg.LLM.APIKey != "dotenv-key" {
		t.Errorf("APIKey = %q, want dotenv-key", cfg.LLM.APIKey)
	}
	if cfg.RateLimit.Window != 2*time.Minute {
		t.Errorf("Window = %v, want 2m", cfg.RateLimit.Window)
	}
	if got := cfg.Payments.APIKey(); got != "live-key" {
		t.Errorf("Payments.APIKey() = %q, want live-key", got)
	}
}

func TestAlternateEnvNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("DECKSLAYER_LLM_API_KEY", "alt-key")
	t.Setenv("DATABASE_URL", "postgres://db")

	cfg, err := loadWith(mapBackend{}, dotenv{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.LLM.APIKey != "alt-key" {
		t.Errorf("APIKey = %q, want alt-key", cfg.LLM.APIKey)
	}
	if cfg.Storage.DSN != "postgres://db" {
		t.Errorf("DSN = %q, want postgres://db", cfg.Storage.DSN)
	}

	t.Setenv("GEMINI_API_KEY", "primary-key")
	cfg, _ = loadWith(mapBackend{}, dotenv{})
	if cfg.LLM.APIKey != "primary-key" {
		t.Errorf("APIKey = %q, want primary-key to win", cfg.LLM.APIKey)
	}
}

func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)
	_, err := loadWith(mapBackend{"llm.api_key": "from-file"}, dotenv{})
	if err == nil {
		t.Error("loadWith: secret read from config file, want missing key error")
	}
}

func TestInvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DECKSLAYER_SERVER_PORT", "not-a-number")
	t.Setenv("DECKSLAYER_ARCHIVE_USE_SSL", "maybe")

	cfg, err := loadWith(mapBackend{"ratelimit.window": "soon"}, dotenv{"GEMINI_API_KEY": "k"})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want default 3000", cfg.Server.Port)
	}
	if !cfg.Archive.UseSSL {
		t.Error("Archive.UseSSL = false, want default true")
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("Window = %v, want default 1m", cfg.RateLimit.Window)
	}
}

func TestOrigins(t *testing.T) {
	s := ServerConfig{BaseURL: "https://deckslayer.app"}
	if got := s.Origins(); len(got) != 1 || got[0] != "https://deckslayer.app" {
		t.Errorf("Origins() = %v, want base url", got)
	}
	s.CORSOrigins = "https://a.example, https://b.example,"
	if got := s.Origins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("Origins() = %v, want two origins", got)
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckslayer", "config.yaml")
	b := newFileBackend(path)
	if err := setKeyWith(b, "server.port", "8080"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if err := setKeyWith(b, "llm.analysis_model", "gemini-1.5-pro"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading config file: %v", err)
	}
	if !strings.Contains(string(data), "server.port: 8080") {
		t.Errorf("config file = %q, want flat dotted key", data)
	}

	reloaded := newFileBackend(path)
	port, ok, err := reloaded.GetInt("server.port")
	if err != nil || !ok || port != 8080 {
		t.Errorf("GetInt = %d, %v, %v, want 8080", port, ok, err)
	}
	model, ok, _ := reloaded.GetString("llm.analysis_model")
	if !ok || model != "gemini-1.5-pro" {
		t.Errorf("GetString = %q, %v", model, ok)
	}
}

func TestSetKeyRejects(t *testing.T) {
	b := mapBackend{}
	if err := setKeyWith(b, "llm.api_key", "x"); err == nil {
		t.Error("setKeyWith(secret) = nil, want error")
	}
	if err := setKeyWith(b, "nope", "x"); err == nil {
		t.Error("setKeyWith(unknown) = nil, want error")
	}
	if err := setKeyWith(b, "ratelimit.window", "soon"); err == nil {
		t.Error("setKeyWith(bad duration) = nil, want error")
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("setKeyWith(bad int) = nil, want error")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "sekret"
	for _, k := range ShowAll(cfg) {
		if k.Value == "sekret" || k.Key == "llm.api_key" {
			t.Errorf("ShowAll exposed secret key %s", k.Key)
		}
	}
	for _, k := range ValidKeys() {
		if k == "payments.webhook_key" {
			t.Error("ValidKeys includes payments.webhook_key")
		}
	}
}
