// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Retrieval     RetrievalConfig         `mapstructure:"retrieval"`
	Fallback      FallbackConfig          `mapstructure:"fallback"`
	Geocode       GeocodeConfig           `mapstructure:"geocode"`
	Conversation  ConversationConfig      `mapstructure:"conversation"`
	Server        ServerConfig            `mapstructure:"server"`
	Registry      RegistryConfig          `mapstructure:"registry"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	// Enabled turns on the location_mappings loader. The static table works without it.
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL shorthand
	Index     string   `mapstructure:"index"`
	// Dims is the dense_vector dimension used when the facility index is created.
	Dims int `mapstructure:"dims"`
}

// GetAddresses returns Addresses, or URL as a single address.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// EmbeddingConfig selects the text embedding backend.
type EmbeddingConfig struct {
	Provider    string `mapstructure:"provider"` // "http" or "gemini"
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	Timeout     int    `mapstructure:"timeout"`   // milliseconds
	CacheTTL    int    `mapstructure:"cache_ttl"` // seconds, 0 disables the cache
	CachePrefix string `mapstructure:"cache_prefix"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	Perplexity struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"perplexity"`

	NaverCafe struct {
		BaseURL        string `mapstructure:"base_url"`
		ClientID       string `mapstructure:"client_id"`
		ClientSecret   string `mapstructure:"client_secret"`
		Display        int    `mapstructure:"display"`
		Timeout        int    `mapstructure:"timeout"` // milliseconds
		EnrichArticles bool   `mapstructure:"enrich_articles"`
		EnrichTimeout  int    `mapstructure:"enrich_timeout"` // milliseconds
	} `mapstructure:"naver_cafe"`

	Kakao struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"kakao"`
}

// RetrievalConfig tunes the vector search and the filter pipeline.
type RetrievalConfig struct {
	SimilarityThreshold   float64  `mapstructure:"similarity_threshold"`
	CandidateCount        int      `mapstructure:"candidate_count"`
	DefaultResultCount    int      `mapstructure:"default_result_count"`
	DefaultLat            float64  `mapstructure:"default_lat"`
	DefaultLng            float64  `mapstructure:"default_lng"`
	ZeroOnMalformedCoords bool     `mapstructure:"zero_on_malformed_coords"`
	TokenStoplist         []string `mapstructure:"token_stoplist"`
	Timeout               int      `mapstructure:"timeout"` // milliseconds
	LocationTablePath     string   `mapstructure:"location_table_path"`
	LocationFromPostgres  bool     `mapstructure:"location_from_postgres"`
}

// FallbackConfig controls the secondary search chain.
type FallbackConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Providers []string `mapstructure:"providers"` // ordered: "web", "cafe"
}

type GeocodeConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	CacheTTL    int     `mapstructure:"cache_ttl"`  // seconds, 0 disables the cache
	RateLimit   float64 `mapstructure:"rate_limit"` // requests per second to the Kakao API
}

// ConversationConfig controls the in-memory conversation store.
type ConversationConfig struct {
	TTL             int `mapstructure:"ttl"`              // seconds, 0 = never expire
	CleanupInterval int `mapstructure:"cleanup_interval"` // seconds
}

type ServerConfig struct {
	Port               int `mapstructure:"port"`
	StreamPollInterval int `mapstructure:"stream_poll_interval"` // milliseconds
	StreamIdleTimeout  int `mapstructure:"stream_idle_timeout"`  // milliseconds
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	TimingBuffer   int    `mapstructure:"timing_buffer"`
}
