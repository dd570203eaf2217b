package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Auth      AuthConfig      `yaml:"auth"`
	Booking   BookingConfig   `yaml:"booking"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tickets   TicketsConfig   `yaml:"tickets"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	DSN           string        `yaml:"dsn"`
	MaxOpenConns  int           `yaml:"max_open_conns"`
	MaxIdleConns  int           `yaml:"max_idle_conns"`
	MaxLifetime   time.Duration `yaml:"max_lifetime"`
	MigrationsDir string        `yaml:"migrations_dir"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	GroupID string      `yaml:"group_id"`
	Enabled bool        `yaml:"enabled"`
	Topics  TopicConfig `yaml:"topics"`
}

type TopicConfig struct {
	BookingEvents  string `yaml:"booking_events"`
	PaymentsStatus string `yaml:"payments_status"`
}

type AuthConfig struct {
	OIDCIssuer string `yaml:"oidc_issuer"`
	JWTSecret  string `yaml:"jwt_secret"`
}

type BookingConfig struct {
	SeatLockTTL  time.Duration `yaml:"seat_lock_ttl"`
	PaymentFirst bool          `yaml:"payment_first"`
	Timezone     string        `yaml:"timezone"`
}

type SchedulerConfig struct {
	CompletionInterval time.Duration `yaml:"completion_interval"`
	BatchSize          int           `yaml:"batch_size"`
}

type TicketsConfig struct {
	QRSecret string `yaml:"qr_secret"`
}

type PaymentsConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

type LogConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8084",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:  25,
			MaxIdleConns:  25,
			MaxLifetime:   5 * time.Minute,
			MigrationsDir: "./migrations",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Enabled: true,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			GroupID: "reservation-service",
			Enabled: true,
			Topics: TopicConfig{
				BookingEvents:  "reservation.bookings",
				PaymentsStatus: "reservation.payments.status",
			},
		},
		Booking: BookingConfig{
			SeatLockTTL: 30 * time.Second,
			Timezone:    "UTC",
		},
		Scheduler: SchedulerConfig{
			CompletionInterval: 15 * time.Minute,
			BatchSize:          200,
		},
		Log: LogConfig{
			Dir:   "logs",
			Level: "INFO",
		},
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_PATH (if set),
// then applies environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)

	c.Database.DSN = getEnv("POSTGRES_DSN", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.MaxLifetime = getEnvDuration("DB_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.MigrationsDir = getEnv("MIGRATIONS_DIR", c.Database.MigrationsDir)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)
	c.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Topics.BookingEvents = getEnv("KAFKA_TOPIC_BOOKINGS", c.Kafka.Topics.BookingEvents)
	c.Kafka.Topics.PaymentsStatus = getEnv("KAFKA_TOPIC_PAYMENTS", c.Kafka.Topics.PaymentsStatus)

	c.Auth.OIDCIssuer = getEnv("OIDC_ISSUER", c.Auth.OIDCIssuer)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)

	c.Booking.SeatLockTTL = getEnvDuration("SEAT_LOCK_TTL", c.Booking.SeatLockTTL)
	c.Booking.PaymentFirst = getEnvBool("BOOKING_PAYMENT_FIRST", c.Booking.PaymentFirst)
	c.Booking.Timezone = getEnv("BOOKING_TIMEZONE", c.Booking.Timezone)

	c.Scheduler.CompletionInterval = getEnvDuration("COMPLETION_SWEEP_INTERVAL", c.Scheduler.CompletionInterval)
	c.Scheduler.BatchSize = getEnvInt("COMPLETION_SWEEP_BATCH", c.Scheduler.BatchSize)

	c.Tickets.QRSecret = getEnv("QR_SECRET", c.Tickets.QRSecret)
	c.Payments.WebhookSecret = getEnv("PAYMENT_WEBHOOK_SECRET", c.Payments.WebhookSecret)

	c.Log.Dir = getEnv("LOG_DIR", c.Log.Dir)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("booking timezone: %w", err)
	}
	if c.Booking.SeatLockTTL <= 0 {
		return fmt.Errorf("seat lock ttl must be positive, got %s", c.Booking.SeatLockTTL)
	}
	if c.Scheduler.CompletionInterval <= 0 {
		return fmt.Errorf("completion sweep interval must be positive, got %s", c.Scheduler.CompletionInterval)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	return nil
}

// Location is the zone used to decide what "today" is for journey dates.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Booking.Timezone)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
