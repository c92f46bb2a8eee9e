package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type PlaceholderMode string

const (
	PlaceholderModeCompletion    PlaceholderMode = "completion"
	PlaceholderModeDeterministic PlaceholderMode = "deterministic"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Pipeline      PipelineConfig
	AI            AIConfig
	Embedding     EmbeddingConfig
	Store         StoreConfig
	Vector        VectorConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type PipelineConfig struct {
	BatchSize       int
	TopK            int
	TopN            int
	TemplateRetries int
	PlaceholderMode PlaceholderMode
	MaxRows         int
	OutputPath      string
}

type AIConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	TopP              float64
	MaxTokens         int
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	RequestsPerSecond float64
	Burst             int
}

type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type StoreConfig struct {
	Driver          string
	DataDir         string
	DSNTemplate     string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type VectorConfig struct {
	Backend string
	Dir     string
	PGDSN   string
	PGTable string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel    slog.Level
	LogJSON     bool
	MetricsAddr string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("RECORDSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid RECORDSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var mode string
	if err := applyString(lookup, "RECORDSQL_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_BATCH_SIZE", &cfg.Pipeline.BatchSize); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_TOP_K", &cfg.Pipeline.TopK); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_TOP_N", &cfg.Pipeline.TopN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_TEMPLATE_RETRIES", &cfg.Pipeline.TemplateRetries); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_PLACEHOLDER_MODE", &mode); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_MAX_ROWS", &cfg.Pipeline.MaxRows); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_OUTPUT_PATH", &cfg.Pipeline.OutputPath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "RECORDSQL_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "RECORDSQL_AI_TOP_P", &cfg.AI.TopP); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_AI_MAX_TOKENS", &cfg.AI.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "RECORDSQL_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_AI_MAX_RETRIES", &cfg.AI.MaxRetries); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "RECORDSQL_AI_RETRY_BACKOFF", &cfg.AI.RetryBackoff); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "RECORDSQL_AI_REQUESTS_PER_SECOND", &cfg.AI.RequestsPerSecond); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_AI_BURST", &cfg.AI.Burst); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_EMBEDDING_API_KEY", &cfg.Embedding.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_EMBEDDING_MODEL", &cfg.Embedding.Model); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "RECORDSQL_EMBEDDING_TIMEOUT", &cfg.Embedding.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_STORE_DRIVER", &cfg.Store.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_STORE_DATA_DIR", &cfg.Store.DataDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_STORE_DSN_TEMPLATE", &cfg.Store.DSNTemplate); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECORDSQL_STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "RECORDSQL_STORE_CONN_MAX_LIFETIME", &cfg.Store.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_VECTOR_BACKEND", &cfg.Vector.Backend); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_VECTOR_DIR", &cfg.Vector.Dir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_VECTOR_PG_DSN", &cfg.Vector.PGDSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_VECTOR_PG_TABLE", &cfg.Vector.PGTable); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "RECORDSQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "RECORDSQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "RECORDSQL_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "RECORDSQL_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECORDSQL_METRICS_ADDR", &cfg.Observability.MetricsAddr); err != nil {
		return Config{}, err
	}
	if mode != "" {
		cfg.Pipeline.PlaceholderMode = PlaceholderMode(strings.ToLower(mode))
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("batch size must be > 0")
	}
	if cfg.Pipeline.TopK <= 0 {
		return fmt.Errorf("top k must be > 0")
	}
	if cfg.Pipeline.TopN <= 0 {
		return fmt.Errorf("top n must be > 0")
	}
	if cfg.Pipeline.TemplateRetries < 0 {
		return fmt.Errorf("template retries must be >= 0")
	}
	switch cfg.Pipeline.PlaceholderMode {
	case PlaceholderModeCompletion, PlaceholderModeDeterministic:
	default:
		return fmt.Errorf("invalid RECORDSQL_PLACEHOLDER_MODE: %q", cfg.Pipeline.PlaceholderMode)
	}
	switch cfg.Store.Driver {
	case "sqlite3", "duckdb":
	default:
		return fmt.Errorf("invalid RECORDSQL_STORE_DRIVER: %q", cfg.Store.Driver)
	}
	if !strings.Contains(cfg.Store.DSNTemplate, "{sport}") {
		return fmt.Errorf("RECORDSQL_STORE_DSN_TEMPLATE must contain {sport}")
	}
	switch cfg.Vector.Backend {
	case "file", "s3":
	case "pgvector":
		if cfg.Vector.PGDSN == "" {
			return fmt.Errorf("RECORDSQL_VECTOR_PG_DSN is required for pgvector backend")
		}
	default:
		return fmt.Errorf("invalid RECORDSQL_VECTOR_BACKEND: %q", cfg.Vector.Backend)
	}
	if cfg.AI.MaxRetries < 0 {
		return fmt.Errorf("ai max retries must be >= 0")
	}
	return nil
}

// StoreDSN expands the DSN template for one sport.
func (c StoreConfig) StoreDSN(sport string) string {
	dsn := strings.ReplaceAll(c.DSNTemplate, "{sport}", sport)
	return strings.ReplaceAll(dsn, "{data_dir}", strings.TrimRight(c.DataDir, "/"))
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "recordsql"},
		Pipeline: PipelineConfig{
			BatchSize:       5,
			TopK:            3,
			TopN:            5,
			TemplateRetries: 1,
			PlaceholderMode: PlaceholderModeCompletion,
			MaxRows:         0,
			OutputPath:      "Results.json",
		},
		AI: AIConfig{
			BaseURL:      "https://api.openai.com",
			Model:        "gpt-5",
			Temperature:  0.1,
			TopP:         0.9,
			MaxTokens:    1024,
			Timeout:      60 * time.Second,
			MaxRetries:   1,
			RetryBackoff: 500 * time.Millisecond,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "https://api.openai.com",
			Model:   "text-embedding-3-small",
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:          "sqlite3",
			DataDir:         "db",
			DSNTemplate:     "file:{data_dir}/{sport}.db?mode=ro",
			MaxOpenConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Vector: VectorConfig{
			Backend: "file",
			Dir:     "vector_db",
			PGTable: "entity_vectors",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "recordsql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "vector_db",
			AutoCreateBucket: false,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.AI.MaxRetries = 0
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
