package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "leadflow"
	DefaultPGSSLMode       = "disable"
	DefaultRedisURL        = "redis://127.0.0.1:6379/0"
	DefaultQueueBackend    = "redis"
	DefaultGraphAPIBaseURL = "https://graph.instagram.com/v21.0"
	DefaultModel           = "gpt-4.1-mini"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Queue     QueueConfig     `toml:"queue"`
	Worker    WorkerConfig    `toml:"worker"`
	Instagram InstagramConfig `toml:"instagram"`
	LLM       LLMConfig       `toml:"llm"`
	Tenants   TenantsConfig   `toml:"tenants"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type AuthConfig struct {
	// JWTSecret guards the operator endpoints. Empty disables them.
	JWTSecret string `toml:"jwt_secret"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"gt=0"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int32  `toml:"max_conns" validate:"gte=0"`
	MinConns int32  `toml:"min_conns" validate:"gte=0"`
}

// DSN renders the connection string understood by pgxpool and golang-migrate.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultPGSSLMode
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

type RedisConfig struct {
	URL string `toml:"url"`
}

type QueueConfig struct {
	Backend     string    `toml:"backend" validate:"oneof=redis sqs memory"`
	Partitions  int       `toml:"partitions" validate:"gt=0"`
	PollTimeout Duration  `toml:"poll_timeout"`
	SQS         SQSConfig `toml:"sqs"`
}

type SQSConfig struct {
	Region        string `toml:"region"`
	Endpoint      string `toml:"endpoint"`
	QueueURL      string `toml:"queue_url"`
	DeadLetterURL string `toml:"dead_letter_url"`
}

type WorkerConfig struct {
	Concurrency    int      `toml:"concurrency" validate:"gt=0"`
	MaxAttempts    int      `toml:"max_attempts" validate:"gt=0"`
	BackoffBase    Duration `toml:"backoff_base"`
	BackoffMax     Duration `toml:"backoff_max"`
	LeaseTTL       Duration `toml:"lease_ttl"`
	IdempotencyTTL Duration `toml:"idempotency_ttl"`
	SweepSchedule  string   `toml:"sweep_schedule" validate:"required"`
}

type InstagramConfig struct {
	VerifyToken string   `toml:"verify_token"`
	APIBaseURL  string   `toml:"api_base_url" validate:"required,url"`
	Timeout     Duration `toml:"timeout"`
	SendRate    float64  `toml:"send_rate" validate:"gt=0"`
	SendBurst   int      `toml:"send_burst" validate:"gt=0"`
}

type LLMConfig struct {
	BaseURL               string   `toml:"base_url"`
	Model                 string   `toml:"model" validate:"required"`
	ExtractionModel       string   `toml:"extraction_model"`
	Timeout               Duration `toml:"timeout"`
	MaxTokens             int      `toml:"max_tokens" validate:"gt=0"`
	Temperature           float32  `toml:"temperature" validate:"gte=0,lte=2"`
	PresencePenalty       float32  `toml:"presence_penalty" validate:"gte=-2,lte=2"`
	FrequencyPenalty      float32  `toml:"frequency_penalty" validate:"gte=-2,lte=2"`
	RegenTemperature      float32  `toml:"regen_temperature" validate:"gte=0,lte=2"`
	RegenPresencePenalty  float32  `toml:"regen_presence_penalty" validate:"gte=-2,lte=2"`
	RegenFrequencyPenalty float32  `toml:"regen_frequency_penalty" validate:"gte=-2,lte=2"`
}

type TenantsConfig struct {
	CacheSize int      `toml:"cache_size" validate:"gt=0"`
	CacheTTL  Duration `toml:"cache_ttl"`
}

// Duration decodes TOML strings such as "30s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
			MaxConns: 10,
			MinConns: 1,
		},
		Redis: RedisConfig{
			URL: DefaultRedisURL,
		},
		Queue: QueueConfig{
			Backend:     DefaultQueueBackend,
			Partitions:  8,
			PollTimeout: Duration{2 * time.Second},
		},
		Worker: WorkerConfig{
			Concurrency:    4,
			MaxAttempts:    5,
			BackoffBase:    Duration{2 * time.Second},
			BackoffMax:     Duration{5 * time.Minute},
			LeaseTTL:       Duration{2 * time.Minute},
			IdempotencyTTL: Duration{72 * time.Hour},
			SweepSchedule:  "@every 5s",
		},
		Instagram: InstagramConfig{
			APIBaseURL: DefaultGraphAPIBaseURL,
			Timeout:    Duration{10 * time.Second},
			SendRate:   5,
			SendBurst:  10,
		},
		LLM: LLMConfig{
			Model:                 DefaultModel,
			ExtractionModel:       DefaultModel,
			Timeout:               Duration{30 * time.Second},
			MaxTokens:             300,
			Temperature:           0.6,
			PresencePenalty:       0.4,
			FrequencyPenalty:      0.5,
			RegenTemperature:      0.95,
			RegenPresencePenalty:  0.9,
			RegenFrequencyPenalty: 1.0,
		},
		Tenants: TenantsConfig{
			CacheSize: 1024,
			CacheTTL:  Duration{time.Minute},
		},
	}
}

// Load reads the TOML file at path on top of Defaults. ${VAR} references are
// expanded from the environment before decoding.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.Decode(os.ExpandEnv(string(raw)), &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks struct constraints and cross-field requirements.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	switch c.Queue.Backend {
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis queue backend")
		}
	case "sqs":
		if c.Queue.SQS.QueueURL == "" || c.Queue.SQS.DeadLetterURL == "" {
			return fmt.Errorf("queue.sqs.queue_url and queue.sqs.dead_letter_url are required for the sqs backend")
		}
	}
	if c.Worker.BackoffMax.Duration < c.Worker.BackoffBase.Duration {
		return fmt.Errorf("worker.backoff_max must not be lower than worker.backoff_base")
	}
	return nil
}
