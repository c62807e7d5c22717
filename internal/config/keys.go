package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	alt     []string // older variable names, consulted after env
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

func (s keySpec) envNames() []string {
	if s.env == "" {
		return s.alt
	}
	return append([]string{s.env}, s.alt...)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DECKSLAYER_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.host", typ: kString, env: "DECKSLAYER_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.max_connections", typ: kInt, env: "DECKSLAYER_SERVER_MAX_CONNECTIONS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConnections = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConnections },
	},
	{
		key: "server.base_url", typ: kString, env: "NEXT_PUBLIC_BASE_URL", alt: []string{"DECKSLAYER_BASE_URL"},
		apply:   func(cfg *Config, v any) { cfg.Server.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.BaseURL },
	},
	{
		key: "server.cors_origins", typ: kString, env: "DECKSLAYER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "storage.driver", typ: kString, env: "DECKSLAYER_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.dsn", typ: kString, env: "DECKSLAYER_STORAGE_DSN", alt: []string{"DATABASE_URL"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DECKSLAYER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "llm.base_url", typ: kString, env: "DECKSLAYER_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "GEMINI_API_KEY", alt: []string{"DECKSLAYER_LLM_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.analysis_model", typ: kString, env: "DECKSLAYER_LLM_ANALYSIS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.AnalysisModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.AnalysisModel },
	},
	{
		key: "llm.orchestrator_model", typ: kString, env: "DECKSLAYER_LLM_ORCHESTRATOR_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.OrchestratorModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OrchestratorModel },
	},
	{
		key: "llm.adversarial_model", typ: kString, env: "DECKSLAYER_LLM_ADVERSARIAL_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.AdversarialModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.AdversarialModel },
	},
	{
		key: "auth.supabase_url", typ: kString, env: "NEXT_PUBLIC_SUPABASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Auth.SupabaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SupabaseURL },
	},
	{
		key: "auth.supabase_anon_key", typ: kString, env: "NEXT_PUBLIC_SUPABASE_ANON_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.SupabaseAnonKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SupabaseAnonKey },
	},
	{
		key: "auth.admin_emails", typ: kString, env: "ADMIN_EMAILS",
		apply:   func(cfg *Config, v any) { cfg.Auth.AdminEmails = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.AdminEmails },
	},
	{
		key: "payments.environment", typ: kString, env: "DODO_PAYMENTS_ENVIRONMENT",
		apply:   func(cfg *Config, v any) { cfg.Payments.Environment = v.(string) },
		extract: func(cfg Config) any { return cfg.Payments.Environment },
	},
	{
		key: "payments.api_key_live", typ: kString, env: "DODO_API_KEY_LIVE",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Payments.APIKeyLive = v.(string) },
		extract: func(cfg Config) any { return cfg.Payments.APIKeyLive },
	},
	{
		key: "payments.api_key_test", typ: kString, env: "DODO_API_KEY_TEST",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Payments.APIKeyTest = v.(string) },
		extract: func(cfg Config) any { return cfg.Payments.APIKeyTest },
	},
	{
		key: "payments.webhook_key", typ: kString, env: "DODO_PAYMENTS_WEBHOOK_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Payments.WebhookKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Payments.WebhookKey },
	},
	{
		key: "payments.default_product", typ: kString, env: "DODO_PRODUCT_ID",
		apply:   func(cfg *Config, v any) { cfg.Payments.DefaultProduct = v.(string) },
		extract: func(cfg Config) any { return cfg.Payments.DefaultProduct },
	},
	{
		key: "payments.batch_credits", typ: kInt, env: "DECKSLAYER_PAYMENTS_BATCH_CREDITS",
		apply:   func(cfg *Config, v any) { cfg.Payments.BatchCredits = v.(int) },
		extract: func(cfg Config) any { return cfg.Payments.BatchCredits },
	},
	{
		key: "archive.endpoint", typ: kString, env: "DECKSLAYER_ARCHIVE_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Archive.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.Endpoint },
	},
	{
		key: "archive.bucket", typ: kString, env: "DECKSLAYER_ARCHIVE_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Archive.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.Bucket },
	},
	{
		key: "archive.access_key", typ: kString, env: "DECKSLAYER_ARCHIVE_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Archive.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.AccessKey },
	},
	{
		key: "archive.secret_key", typ: kString, env: "DECKSLAYER_ARCHIVE_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Archive.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.SecretKey },
	},
	{
		key: "archive.use_ssl", typ: kBool, env: "DECKSLAYER_ARCHIVE_USE_SSL",
		apply:   func(cfg *Config, v any) { cfg.Archive.UseSSL = v.(bool) },
		extract: func(cfg Config) any { return cfg.Archive.UseSSL },
	},
	{
		key: "ratelimit.analyze_max", typ: kInt, env: "DECKSLAYER_RATELIMIT_ANALYZE_MAX",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.AnalyzeMax = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.AnalyzeMax },
	},
	{
		key: "ratelimit.rebut_max", typ: kInt, env: "DECKSLAYER_RATELIMIT_REBUT_MAX",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RebutMax = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.RebutMax },
	},
	{
		key: "ratelimit.window", typ: kDuration, env: "DECKSLAYER_RATELIMIT_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Window = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.RateLimit.Window },
	},
	{
		key: "log.level", typ: kString, env: "DECKSLAYER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		v, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || v == "" {
			continue
		}
		if parsed, err := parseValue(s.typ, v); err == nil {
			s.apply(cfg, parsed)
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
		}
	}
	return nil
}

// applyLookups applies every key whose environment name lookup finds. The
// first name found wins; later names are not consulted.
func applyLookups(cfg *Config, lookup func(string) (string, bool), source string) {
	for _, s := range specs {
		for _, name := range s.envNames() {
			raw, ok := lookup(name)
			if !ok {
				continue
			}
			if v, err := parseValue(s.typ, raw); err == nil {
				s.apply(cfg, v)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse %s %s=%q: %v. Using default value.\n", source, name, raw, err)
			}
			break
		}
	}
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}
