// Package config loads the process configuration from the environment, with a best-effort .env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
)

// Transport names accepted in NOTIFY_TRANSPORT.
const (
	TransportMemory   = "memory"
	TransportNATS     = "nats"
	TransportRabbitMQ = "rabbitmq"
	TransportKafka    = "kafka"
	TransportWebhook  = "webhook"
)

type Config struct {
	Transport string
	SessionID string
	LogLevel  string

	MaxInFlight int
	PageSize    int
	IndexDelay  time.Duration

	// RepositoryDSN is the sqlite DSN of the events repository.
	RepositoryDSN string

	NATSURL     string
	NATSSubject string

	AMQPURL        string
	AMQPExchange   string
	AMQPQueue      string
	AMQPBindingKey string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	WebhookAddr      string
	WebhookPath      string
	WebhookSecret    string
	WebhookTargetURL string

	// RedisAddr enables the Redis store mirror when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	// MetricsAddr serves /metrics when set.
	MetricsAddr string
}

func FromEnv() Config {
	// best-effort .env loading (no error if missing)
	_ = godotenv.Load()

	return Config{
		Transport: strings.ToLower(getenv("NOTIFY_TRANSPORT", TransportMemory)),
		SessionID: getenv("NOTIFY_SESSION_ID", uuid.NewString()),
		LogLevel:  getenv("LOG_LEVEL", "info"),

		MaxInFlight: atoi(getenv("NOTIFY_MAX_IN_FLIGHT", "1"), 1),
		PageSize:    atoi(getenv("NOTIFY_PAGE_SIZE", "25"), 25),
		IndexDelay:  parseDuration(getenv("NOTIFY_INDEX_DELAY", "0s"), 0),

		RepositoryDSN: getenv("NOTIFY_REPOSITORY_DSN", "file:planning.db?_pragma=busy_timeout(5000)"),

		NATSURL:     getenv("NATS_URL", ""),
		NATSSubject: getenv("NATS_SUBJECT", "planning.notifications"),

		AMQPURL:        getenv("AMQP_URL", ""),
		AMQPExchange:   getenv("AMQP_EXCHANGE", "planning"),
		AMQPQueue:      getenv("AMQP_QUEUE", ""),
		AMQPBindingKey: getenv("AMQP_BINDING_KEY", "#"),

		KafkaBrokers: splitList(getenv("KAFKA_BROKERS", "")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "planning.notifications"),
		KafkaGroup:   getenv("KAFKA_GROUP", ""),

		WebhookAddr:      getenv("WEBHOOK_ADDR", ":8080"),
		WebhookPath:      getenv("WEBHOOK_PATH", "/notifications"),
		WebhookSecret:    getenv("WEBHOOK_SECRET", ""),
		WebhookTargetURL: getenv("WEBHOOK_TARGET_URL", ""),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       atoiZero(getenv("REDIS_DB", "0")),
		RedisKey:      getenv("REDIS_KEY", "planning:events"),

		MetricsAddr: getenv("METRICS_ADDR", ""),
	}
}

// Validate reports a configuration the selected transport cannot start with.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportMemory, TransportWebhook:
		return nil
	case TransportNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("config: NATS_URL required: %w", nerr.ErrTransportNotConfigured)
		}
	case TransportRabbitMQ:
		if c.AMQPURL == "" {
			return fmt.Errorf("config: AMQP_URL required: %w", nerr.ErrTransportNotConfigured)
		}
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("config: KAFKA_BROKERS required: %w", nerr.ErrTransportNotConfigured)
		}
	default:
		return fmt.Errorf("config: unknown transport %q: %w", c.Transport, nerr.ErrTransportNotConfigured)
	}

	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}

	return n
}

func atoiZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}

	return n
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}

	return d
}

func splitList(s string) []string {
	var out []string

	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
