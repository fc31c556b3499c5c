// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultSimilarityThreshold = 1.3
	DefaultCandidateCount      = 5
	DefaultResultCount         = 3
	DefaultLat                 = 37.5665
	DefaultLng                 = 126.9780
	MaxGeocodeAttempts         = 3
)

// Load reads .env, configs/config.yaml and configs/config.<APP_ENVIRONMENT>.yaml, expands
// ${VAR} placeholders, applies defaults and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	setViperDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setViperDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Booleans whose zero value is not the intended default go through viper.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("fallback.enabled", true)
	v.SetDefault("apis.naver_cafe.enrich_articles", true)
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // tests under test/e2e
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func envIfEmpty(dst *string, key string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	envIfEmpty(&cfg.APIs.Kakao.APIKey, "KAKAO_API_KEY")
	envIfEmpty(&cfg.APIs.Kakao.APIKey, "KAKAO_REST_API_KEY")
	envIfEmpty(&cfg.APIs.Perplexity.APIKey, "PERPLEXITY_API_KEY")
	envIfEmpty(&cfg.APIs.NaverCafe.ClientID, "NAVER_CLIENT_ID")
	envIfEmpty(&cfg.APIs.NaverCafe.ClientSecret, "NAVER_CLIENT_SECRET")
	envIfEmpty(&cfg.APIs.Embedding.APIKey, "GEMINI_API_KEY")

	envIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	envIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "outing-workers"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "kid_program_facilities"
	}
	if cfg.Database.Elasticsearch.Dims == 0 {
		cfg.Database.Elasticsearch.Dims = 256
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 15000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	emb := &cfg.APIs.Embedding
	if emb.Provider == "" {
		emb.Provider = "http"
	}
	if emb.Timeout == 0 {
		emb.Timeout = 5000
	}
	if emb.CachePrefix == "" {
		emb.CachePrefix = "outing:embed:"
	}

	ppx := &cfg.APIs.Perplexity
	if ppx.BaseURL == "" {
		ppx.BaseURL = "https://api.perplexity.ai"
	}
	if ppx.Model == "" {
		ppx.Model = "sonar-pro"
	}
	if ppx.Timeout == 0 {
		ppx.Timeout = 8000
	}

	cafe := &cfg.APIs.NaverCafe
	if cafe.BaseURL == "" {
		cafe.BaseURL = "https://openapi.naver.com"
	}
	if cafe.Display == 0 {
		cafe.Display = 10
	}
	if cafe.Timeout == 0 {
		cafe.Timeout = 5000
	}
	if cafe.EnrichTimeout == 0 {
		cafe.EnrichTimeout = 3000
	}

	kakao := &cfg.APIs.Kakao
	if kakao.BaseURL == "" {
		kakao.BaseURL = "https://dapi.kakao.com"
	}
	if kakao.Timeout == 0 {
		kakao.Timeout = 3000
	}

	r := &cfg.Retrieval
	if r.SimilarityThreshold == 0 {
		r.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if r.CandidateCount == 0 {
		r.CandidateCount = DefaultCandidateCount
	}
	if r.DefaultResultCount == 0 {
		r.DefaultResultCount = DefaultResultCount
	}
	if r.DefaultLat == 0 && r.DefaultLng == 0 {
		r.DefaultLat = DefaultLat
		r.DefaultLng = DefaultLng
	}
	if r.Timeout == 0 {
		r.Timeout = 5000
	}

	if len(cfg.Fallback.Providers) == 0 {
		cfg.Fallback.Providers = []string{"web", "cafe"}
	}

	if cfg.Geocode.MaxAttempts == 0 {
		cfg.Geocode.MaxAttempts = MaxGeocodeAttempts
	}
	if cfg.Geocode.RateLimit <= 0 {
		cfg.Geocode.RateLimit = 10
	}

	if cfg.Conversation.CleanupInterval == 0 {
		cfg.Conversation.CleanupInterval = 600
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.StreamPollInterval == 0 {
		cfg.Server.StreamPollInterval = 500
	}
	if cfg.Server.StreamIdleTimeout == 0 {
		cfg.Server.StreamIdleTimeout = 120000
	}

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "configs/activity-registry.json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.TimingBuffer == 0 {
		cfg.Observability.TimingBuffer = 1000
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Database.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required when postgres is enabled")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required when postgres is enabled")
		}
	}

	switch cfg.APIs.Embedding.Provider {
	case "http":
		if cfg.APIs.Embedding.BaseURL == "" {
			return fmt.Errorf("apis.embedding.base_url is required for the http provider")
		}
	case "gemini":
		if cfg.APIs.Embedding.APIKey == "" {
			return fmt.Errorf("apis.embedding.api_key (or GEMINI_API_KEY) is required for the gemini provider")
		}
	default:
		return fmt.Errorf("apis.embedding.provider must be http or gemini, got %q", cfg.APIs.Embedding.Provider)
	}

	if cfg.Retrieval.SimilarityThreshold < 0 {
		return fmt.Errorf("retrieval.similarity_threshold must be positive")
	}

	for _, p := range cfg.Fallback.Providers {
		if p != "web" && p != "cafe" {
			return fmt.Errorf("fallback.providers: unknown provider %q", p)
		}
	}

	if cfg.Geocode.MaxAttempts < 1 || cfg.Geocode.MaxAttempts > MaxGeocodeAttempts {
		return fmt.Errorf("geocode.max_attempts must be between 1 and %d", MaxGeocodeAttempts)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       15000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
