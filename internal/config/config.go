package config

import (
	"fmt"
	"strings"
	"time"

	"cravebiz/internal/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort   string
	Database   DatabaseConfig
	Redis      RedisConfig
	Minio      MinioConfig
	Kafka      KafkaConfig
	OpenAI     OpenAIConfig
	Auth       AuthConfig
	Recurrence RecurrenceConfig
	Log        logger.LogConfig
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PublicBase string
}

type KafkaConfig struct {
	Brokers       []string
	DispatchTopic string
	WriteTimeout  time.Duration
}

type OpenAIConfig struct {
	APIKey string
	Model  string
	// Breaker opens after this many consecutive failures.
	MaxFailures  int
	ResetTimeout time.Duration
}

// AuthConfig selects HMAC verification when Secret is set, JWKS otherwise.
type AuthConfig struct {
	JWTSecret string
	JWKSURL   string
}

type RecurrenceConfig struct {
	Interval time.Duration
	// MaxCatchUp bounds how many missed dates one template may fire per run.
	MaxCatchUp int
	LockTTL    time.Duration
}

// Load reads .env (if present) and the environment.
func Load() *Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		log.Debug().Err(err).Msg(".env not loaded, using environment only")
	}

	setDefaults(v)

	return &Config{
		HTTPPort: v.GetString("HTTP_PORT"),
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt32("DATABASE_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Minio: MinioConfig{
			Endpoint:   v.GetString("MINIO_ENDPOINT"),
			AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  v.GetString("MINIO_SECRET_KEY"),
			UseSSL:     v.GetBool("MINIO_USE_SSL"),
			Bucket:     v.GetString("MINIO_BUCKET"),
			PublicBase: v.GetString("MINIO_PUBLIC_BASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(v.GetString("KAFKA_BROKERS")),
			DispatchTopic: v.GetString("KAFKA_DISPATCH_TOPIC"),
			WriteTimeout:  v.GetDuration("KAFKA_WRITE_TIMEOUT"),
		},
		OpenAI: OpenAIConfig{
			APIKey:       v.GetString("OPENAI_API_KEY"),
			Model:        v.GetString("OPENAI_MODEL"),
			MaxFailures:  v.GetInt("OPENAI_MAX_FAILURES"),
			ResetTimeout: v.GetDuration("OPENAI_RESET_TIMEOUT"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			JWKSURL:   v.GetString("JWKS_URL"),
		},
		Recurrence: RecurrenceConfig{
			Interval:   v.GetDuration("RECURRENCE_INTERVAL"),
			MaxCatchUp: v.GetInt("RECURRENCE_MAX_CATCH_UP"),
			LockTTL:    v.GetDuration("RECURRENCE_LOCK_TTL"),
		},
		Log: logger.LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			TimeFormat: v.GetString("LOG_TIME_FORMAT"),
			Output:     v.GetString("LOG_OUTPUT"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_MAX_CONNS", 10)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_BUCKET", "company-assets")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_DISPATCH_TOPIC", "invoice-dispatch")
	v.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_MAX_FAILURES", 3)
	v.SetDefault("OPENAI_RESET_TIMEOUT", "1m")
	v.SetDefault("RECURRENCE_INTERVAL", "15m")
	v.SetDefault("RECURRENCE_MAX_CATCH_UP", 24)
	v.SetDefault("RECURRENCE_LOCK_TTL", "5m")

	def := logger.DefaultConfig()
	v.SetDefault("LOG_LEVEL", def.Level)
	v.SetDefault("LOG_FORMAT", def.Format)
	v.SetDefault("LOG_TIME_FORMAT", def.TimeFormat)
	v.SetDefault("LOG_OUTPUT", def.Output)
}

// Validate reports settings the worker cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("one of JWT_SECRET or JWKS_URL is required")
	}
	if c.Recurrence.Interval <= 0 {
		return fmt.Errorf("RECURRENCE_INTERVAL must be positive")
	}
	if c.Recurrence.MaxCatchUp <= 0 {
		return fmt.Errorf("RECURRENCE_MAX_CATCH_UP must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
