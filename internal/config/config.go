package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	BackendBigQuery = "bigquery"
	BackendDuckDB   = "duckdb"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	LLM           LLMConfig
	Chat          ChatConfig
	History       HistoryConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	UI            UIConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WarehouseConfig struct {
	Backend         string
	ProjectID       string
	Datasets        []string
	DefaultDataset  string
	Location        string
	CredentialsJSON string
	CredentialsFile string
}

type LLMConfig struct {
	Provider        string
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	Timeout         time.Duration
}

type ChatConfig struct {
	SampleRows       int
	NoResultsMessage string
	ReadOnly         bool
	MaxResultRows    int
	// SessionIdleTTL evicts sessions untouched for this long. Zero keeps them
	// until they are ended.
	SessionIdleTTL time.Duration
}

type HistoryConfig struct {
	Enabled         bool
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
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

type UIConfig struct {
	Enabled bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// LoadFromEnv reads an optional .env file from the working directory and then
// resolves configuration from the process environment. Variables already set
// in the environment win over the file.
func LoadFromEnv(serviceName string) (Config, error) {
	_ = godotenv.Load()
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("QUERYCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid QUERYCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "QUERYCHAT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "QUERYCHAT_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "QUERYCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "QUERYCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "QUERYCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },

		func() error { return applyString(lookup, "QUERYCHAT_WAREHOUSE_BACKEND", &cfg.Warehouse.Backend) },
		func() error { return applyString(lookup, "QUERYCHAT_WAREHOUSE_PROJECT_ID", &cfg.Warehouse.ProjectID) },
		func() error { return applyList(lookup, "QUERYCHAT_WAREHOUSE_DATASETS", &cfg.Warehouse.Datasets) },
		func() error {
			return applyString(lookup, "QUERYCHAT_WAREHOUSE_DEFAULT_DATASET", &cfg.Warehouse.DefaultDataset)
		},
		func() error { return applyString(lookup, "QUERYCHAT_WAREHOUSE_LOCATION", &cfg.Warehouse.Location) },
		func() error {
			return applyRaw(lookup, "QUERYCHAT_WAREHOUSE_CREDENTIALS_JSON", &cfg.Warehouse.CredentialsJSON)
		},
		func() error {
			return applyString(lookup, "QUERYCHAT_WAREHOUSE_CREDENTIALS_FILE", &cfg.Warehouse.CredentialsFile)
		},

		func() error { return applyString(lookup, "QUERYCHAT_LLM_PROVIDER", &cfg.LLM.Provider) },
		func() error { return applyString(lookup, "QUERYCHAT_LLM_BASE_URL", &cfg.LLM.BaseURL) },
		func() error { return applyString(lookup, "GEMINI_API_KEY", &cfg.LLM.APIKey) },
		func() error { return applyString(lookup, "QUERYCHAT_LLM_API_KEY", &cfg.LLM.APIKey) },
		func() error { return applyString(lookup, "QUERYCHAT_LLM_MODEL", &cfg.LLM.Model) },
		func() error { return applyFloat(lookup, "QUERYCHAT_LLM_TEMPERATURE", &cfg.LLM.Temperature) },
		func() error { return applyFloat(lookup, "QUERYCHAT_LLM_TOP_P", &cfg.LLM.TopP) },
		func() error { return applyInt(lookup, "QUERYCHAT_LLM_TOP_K", &cfg.LLM.TopK) },
		func() error { return applyInt(lookup, "QUERYCHAT_LLM_MAX_OUTPUT_TOKENS", &cfg.LLM.MaxOutputTokens) },
		func() error { return applyDuration(lookup, "QUERYCHAT_LLM_TIMEOUT", &cfg.LLM.Timeout) },

		func() error { return applyInt(lookup, "QUERYCHAT_CHAT_SAMPLE_ROWS", &cfg.Chat.SampleRows) },
		func() error {
			return applyString(lookup, "QUERYCHAT_CHAT_NO_RESULTS_MESSAGE", &cfg.Chat.NoResultsMessage)
		},
		func() error { return applyBool(lookup, "QUERYCHAT_CHAT_READ_ONLY", &cfg.Chat.ReadOnly) },
		func() error { return applyInt(lookup, "QUERYCHAT_CHAT_MAX_RESULT_ROWS", &cfg.Chat.MaxResultRows) },
		func() error {
			return applyDuration(lookup, "QUERYCHAT_CHAT_SESSION_IDLE_TTL", &cfg.Chat.SessionIdleTTL)
		},

		func() error { return applyBool(lookup, "QUERYCHAT_HISTORY_ENABLED", &cfg.History.Enabled) },
		func() error { return applyString(lookup, "QUERYCHAT_HISTORY_DSN", &cfg.History.DSN) },
		func() error { return applyInt(lookup, "QUERYCHAT_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns) },
		func() error { return applyInt(lookup, "QUERYCHAT_HISTORY_MAX_IDLE_CONNS", &cfg.History.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "QUERYCHAT_HISTORY_CONN_MAX_IDLE_TIME", &cfg.History.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "QUERYCHAT_HISTORY_CONN_MAX_LIFETIME", &cfg.History.ConnMaxLifetime)
		},

		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "QUERYCHAT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "QUERYCHAT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "QUERYCHAT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "QUERYCHAT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "QUERYCHAT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},

		func() error { return applyBool(lookup, "QUERYCHAT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "QUERYCHAT_LOG_LEVEL", &cfg.Observability.LogLevel) },

		func() error { return applyBool(lookup, "QUERYCHAT_UI_ENABLED", &cfg.UI.Enabled) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}

	cfg.Warehouse.Backend = strings.ToLower(cfg.Warehouse.Backend)
	switch cfg.Warehouse.Backend {
	case BackendBigQuery:
		if cfg.Warehouse.ProjectID == "" {
			return fmt.Errorf("warehouse project id is required for backend %q", BackendBigQuery)
		}
	case BackendDuckDB:
	default:
		return fmt.Errorf("invalid QUERYCHAT_WAREHOUSE_BACKEND: %q", cfg.Warehouse.Backend)
	}
	if len(cfg.Warehouse.Datasets) == 0 {
		return fmt.Errorf("at least one warehouse dataset is required")
	}
	if cfg.Warehouse.DefaultDataset == "" {
		cfg.Warehouse.DefaultDataset = cfg.Warehouse.Datasets[0]
	}
	if !slices.Contains(cfg.Warehouse.Datasets, cfg.Warehouse.DefaultDataset) {
		return fmt.Errorf("default dataset %q is not in the dataset list", cfg.Warehouse.DefaultDataset)
	}

	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	switch cfg.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid QUERYCHAT_LLM_PROVIDER: %q", cfg.LLM.Provider)
	}

	if cfg.Chat.SampleRows <= 0 {
		return fmt.Errorf("chat sample rows must be > 0")
	}
	if cfg.Chat.SessionIdleTTL < 0 {
		return fmt.Errorf("chat session idle ttl must be >= 0")
	}
	if cfg.History.Enabled && cfg.History.DSN == "" {
		return fmt.Errorf("history dsn is required when history is enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "querychat-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Backend:        BackendBigQuery,
			ProjectID:      "data-driven-cx",
			Datasets:       []string{"Inteligent_datalake", "BANKING_GSIS"},
			DefaultDataset: "Inteligent_datalake",
		},
		LLM: LLMConfig{
			Provider:        ProviderGemini,
			BaseURL:         "https://api.openai.com",
			Model:           "gemini-2.5-flash",
			Temperature:     1.0,
			TopP:            0.95,
			TopK:            64,
			MaxOutputTokens: 8192,
			Timeout:         60 * time.Second,
		},
		Chat: ChatConfig{
			SampleRows:       5,
			NoResultsMessage: "No results found.",
			ReadOnly:         true,
			MaxResultRows:    10000,
			SessionIdleTTL:   2 * time.Hour,
		},
		History: HistoryConfig{
			Enabled:         false,
			DSN:             "",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "querychat",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		UI: UIConfig{Enabled: true},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
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

// applyRaw keeps the value untouched; service account JSON may span lines.
func applyRaw(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = raw
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		values = append(values, part)
	}
	if len(values) == 0 {
		return fmt.Errorf("invalid %s: empty list", key)
	}
	*dst = values
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
