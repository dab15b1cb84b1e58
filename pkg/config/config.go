// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Pipeline, Language, Input, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Language LanguageConfig `yaml:"language"`
	Input    InputConfig    `yaml:"input"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RunTimeout bounds a single
// HTTP-triggered run or sweep; RunsPerMinute limits pipeline requests per
// client, zero disables the limit.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RunTimeout      time.Duration `yaml:"runTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	RunsPerMinute   int           `yaml:"runsPerMinute"`
	RunBurst        int           `yaml:"runBurst"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig lists the brokers, the worker's consumer group and topics.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ReviewBatches string `yaml:"reviewBatches"`
	ThemeRuns     string `yaml:"themeRuns"`
}

// RedisConfig configures the run cache connection and entry TTL.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PipelineConfig holds the default run parameters. Requests may override
// them per run.
type PipelineConfig struct {
	Strategy             string  `yaml:"strategy"`
	K                    int     `yaml:"k"`
	MinDocumentFrequency int     `yaml:"minDocumentFrequency"`
	MaxDocumentFrequency float64 `yaml:"maxDocumentFrequency"`
	TopN                 int     `yaml:"topN"`
	Seed                 uint64  `yaml:"seed"`
	NInit                int     `yaml:"nInit"`
	MaxIterations        int     `yaml:"maxIterations"`
	MaxSweepSize         int     `yaml:"maxSweepSize"`
}

// LanguageConfig points at replacement stopword and lemma files. Empty
// paths select the embedded English resource.
type LanguageConfig struct {
	StopwordsPath string `yaml:"stopwordsPath"`
	LemmasPath    string `yaml:"lemmasPath"`
}

// InputConfig names the CSV columns read by file loaders.
type InputConfig struct {
	TextColumn      string `yaml:"textColumn"`
	SentimentColumn string `yaml:"sentimentColumn"`
	ScoreColumn     string `yaml:"scoreColumn"`
	IDColumn        string `yaml:"idColumn"`
	TimestampColumn string `yaml:"timestampColumn"`
}

// LoggingConfig selects the slog level and the text or json format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no service could start with. Pipeline
// parameters are only checked for shape here; the pipeline validates their
// ranges against the corpus.
func (c *Config) Validate() error {
	var errs []error
	port := func(name string, p int) {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("%s %d out of range", name, p))
		}
	}
	port("server.port", c.Server.Port)
	port("metrics.port", c.Metrics.Port)
	port("postgres.port", c.Postgres.Port)
	if c.Server.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.runTimeout %v is negative", c.Server.RunTimeout))
	}
	if c.Server.RunsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.runsPerMinute %d is negative", c.Server.RunsPerMinute))
	}
	if c.Pipeline.MaxDocumentFrequency <= 0 || c.Pipeline.MaxDocumentFrequency > 1 {
		errs = append(errs, fmt.Errorf("pipeline.maxDocumentFrequency %g not in (0, 1]", c.Pipeline.MaxDocumentFrequency))
	}
	if c.Pipeline.MaxSweepSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.maxSweepSize %d must be positive", c.Pipeline.MaxSweepSize))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is empty"))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not json or text", c.Logging.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RunTimeout:      90 * time.Second,
			MaxBodyBytes:    32 << 20,
			RunsPerMinute:   60,
			RunBurst:        10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "reviewthemes",
			User:            "reviewthemes",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "review-themes-worker",
			Topics: KafkaTopics{
				ReviewBatches: "review-batches",
				ThemeRuns:     "theme-runs",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: time.Hour,
		},
		Pipeline: PipelineConfig{
			Strategy:             "kmeans",
			K:                    5,
			MinDocumentFrequency: 5,
			MaxDocumentFrequency: 0.9,
			TopN:                 10,
			Seed:                 42,
			MaxSweepSize:         9,
		},
		Input: InputConfig{
			TextColumn:      "title",
			SentimentColumn: "sentiment",
			ScoreColumn:     "numeric_rating",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RTA_* environment variables and overrides the
// corresponding config fields. Unparseable numbers are ignored.
func applyEnvOverrides(cfg *Config) {
	envInt("RTA_SERVER_PORT", &cfg.Server.Port)
	envDuration("RTA_SERVER_RUN_TIMEOUT", &cfg.Server.RunTimeout)
	envInt("RTA_SERVER_RUNS_PER_MINUTE", &cfg.Server.RunsPerMinute)
	envList("RTA_SERVER_ALLOW_ORIGINS", &cfg.Server.AllowOrigins)
	envString("RTA_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("RTA_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("RTA_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("RTA_POSTGRES_USER", &cfg.Postgres.User)
	envString("RTA_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("RTA_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	envList("RTA_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	envString("RTA_KAFKA_CONSUMER_GROUP", &cfg.Kafka.ConsumerGroup)
	envString("RTA_REDIS_ADDR", &cfg.Redis.Addr)
	envString("RTA_REDIS_PASSWORD", &cfg.Redis.Password)
	envDuration("RTA_REDIS_CACHE_TTL", &cfg.Redis.CacheTTL)
	envString("RTA_PIPELINE_STRATEGY", &cfg.Pipeline.Strategy)
	envInt("RTA_PIPELINE_K", &cfg.Pipeline.K)
	envInt("RTA_PIPELINE_MIN_DF", &cfg.Pipeline.MinDocumentFrequency)
	envParsed("RTA_PIPELINE_MAX_DF", &cfg.Pipeline.MaxDocumentFrequency, func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
	envInt("RTA_PIPELINE_TOP_N", &cfg.Pipeline.TopN)
	envParsed("RTA_PIPELINE_SEED", &cfg.Pipeline.Seed, func(v string) (uint64, error) {
		return strconv.ParseUint(v, 10, 64)
	})
	envString("RTA_LANGUAGE_STOPWORDS_PATH", &cfg.Language.StopwordsPath)
	envString("RTA_LANGUAGE_LEMMAS_PATH", &cfg.Language.LemmasPath)
	envString("RTA_INPUT_TEXT_COLUMN", &cfg.Input.TextColumn)
	envString("RTA_INPUT_SENTIMENT_COLUMN", &cfg.Input.SentimentColumn)
	envString("RTA_INPUT_SCORE_COLUMN", &cfg.Input.ScoreColumn)
	envString("RTA_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("RTA_LOGGING_FORMAT", &cfg.Logging.Format)
	envInt("RTA_METRICS_PORT", &cfg.Metrics.Port)
}

func envString(key string, dst *string) {
	envParsed(key, dst, func(v string) (string, error) { return v, nil })
}

func envInt(key string, dst *int) {
	envParsed(key, dst, strconv.Atoi)
}

func envDuration(key string, dst *time.Duration) {
	envParsed(key, dst, time.ParseDuration)
}

// envList splits a comma-separated variable, dropping blank entries.
func envList(key string, dst *[]string) {
	envParsed(key, dst, func(v string) ([]string, error) {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	})
}

// envParsed sets *dst from key when it is set and parses.
func envParsed[T any](key string, dst *T, parse func(string) (T, error)) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if parsed, err := parse(v); err == nil {
		*dst = parsed
	}
}
