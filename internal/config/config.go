// Package config loads the admin tool's configuration from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/observability/metrics"
	"mailflowAdmin/internal/observability/tracing"
	"mailflowAdmin/internal/topology"
)

// Broker kinds.
const (
	BrokerSQS    = "sqs"
	BrokerMemory = "memory"
)

// Config is the complete configuration of the admin tool.
type Config struct {
	// Topology
	Environment string
	Apps        []string
	QueuePrefix string

	// Broker
	Broker      string
	Region      string
	SQSEndpoint string

	// HTTP server
	ListenAddr string

	// Admin core
	PeekVisibilityTimeout int
	PeekWaitTime          int
	DefaultMessageLimit   int
	MaxMessageLimit       int
	BatchConcurrency      int
	ItemTimeout           time.Duration
	RefreshInterval       time.Duration
	IncludeUndeclared     bool

	// Observability
	LogLevel        string
	LogFormat       string
	MetricsEnabled  bool
	MetricsEndpoint string
	TracingEnabled  bool
	TracingEndpoint string
	ServiceName     string
	ServiceVersion  string

	// invalid lists variables whose values could not be parsed.
	invalid []string
}

// Load reads the configuration. Values come from the process environment, then from envFile
// when given (it must exist), else from ./.env when present, then from defaults.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	defaults := admin.DefaultConfig()
	c := &Config{}

	c.Environment = getEnv("MAILFLOW_ENVIRONMENT", "")
	c.Apps = parseList(getEnv("MAILFLOW_APPS", ""))
	c.QueuePrefix = getEnv("MAILFLOW_QUEUE_PREFIX", topology.DefaultPrefix)

	c.Broker = strings.ToLower(getEnv("MAILFLOW_BROKER", BrokerSQS))
	c.Region = getEnv("AWS_REGION", "us-east-1")
	c.SQSEndpoint = getEnv("MAILFLOW_SQS_ENDPOINT", "")

	c.ListenAddr = getEnv("MAILFLOW_LISTEN_ADDR", ":8080")

	c.PeekVisibilityTimeout = c.getEnvInt("MAILFLOW_PEEK_VISIBILITY_TIMEOUT", defaults.PeekVisibilityTimeout)
	c.PeekWaitTime = c.getEnvInt("MAILFLOW_PEEK_WAIT_TIME", defaults.PeekWaitTime)
	c.DefaultMessageLimit = c.getEnvInt("MAILFLOW_DEFAULT_MESSAGE_LIMIT", defaults.DefaultMessageLimit)
	c.MaxMessageLimit = c.getEnvInt("MAILFLOW_MAX_MESSAGE_LIMIT", defaults.MaxMessageLimit)
	c.BatchConcurrency = c.getEnvInt("MAILFLOW_BATCH_CONCURRENCY", defaults.BatchConcurrency)
	c.ItemTimeout = c.getEnvDuration("MAILFLOW_ITEM_TIMEOUT", defaults.ItemTimeout)
	c.RefreshInterval = c.getEnvDuration("MAILFLOW_REFRESH_INTERVAL", 0)
	c.IncludeUndeclared = c.getEnvBool("MAILFLOW_INCLUDE_UNDECLARED", defaults.IncludeUndeclared)

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "text")
	c.MetricsEnabled = c.getEnvBool("METRICS_ENABLED", false)
	c.MetricsEndpoint = getEnv("METRICS_ENDPOINT", ":9090")
	c.TracingEnabled = c.getEnvBool("TRACING_ENABLED", false)
	c.TracingEndpoint = getEnv("TRACING_ENDPOINT", "localhost:4317")
	c.ServiceName = getEnv("SERVICE_NAME", "mailflow-admin")
	c.ServiceVersion = getEnv("SERVICE_VERSION", "0.1.0")

	return c, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	for _, key := range c.invalid {
		errs = append(errs, fmt.Errorf("%s: invalid value %q", key, os.Getenv(key)))
	}

	if c.Environment == "" {
		errs = append(errs, errors.New("MAILFLOW_ENVIRONMENT is required"))
	}
	if c.QueuePrefix == "" {
		errs = append(errs, errors.New("MAILFLOW_QUEUE_PREFIX must not be empty"))
	}
	switch c.Broker {
	case BrokerSQS:
		if c.Region == "" {
			errs = append(errs, errors.New("AWS_REGION is required for the sqs broker"))
		}
	case BrokerMemory:
	default:
		errs = append(errs, fmt.Errorf("MAILFLOW_BROKER: unknown broker %q, want %s or %s", c.Broker, BrokerSQS, BrokerMemory))
	}

	if c.PeekVisibilityTimeout < 0 || c.PeekVisibilityTimeout > 43200 {
		errs = append(errs, fmt.Errorf("MAILFLOW_PEEK_VISIBILITY_TIMEOUT must be between 0 and 43200, got %d", c.PeekVisibilityTimeout))
	}
	if c.PeekWaitTime < 0 || c.PeekWaitTime > 20 {
		errs = append(errs, fmt.Errorf("MAILFLOW_PEEK_WAIT_TIME must be between 0 and 20, got %d", c.PeekWaitTime))
	}
	if c.DefaultMessageLimit <= 0 {
		errs = append(errs, fmt.Errorf("MAILFLOW_DEFAULT_MESSAGE_LIMIT must be positive, got %d", c.DefaultMessageLimit))
	}
	if c.MaxMessageLimit <= 0 {
		errs = append(errs, fmt.Errorf("MAILFLOW_MAX_MESSAGE_LIMIT must be positive, got %d", c.MaxMessageLimit))
	}
	if c.BatchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("MAILFLOW_BATCH_CONCURRENCY must be positive, got %d", c.BatchConcurrency))
	}
	if c.ItemTimeout <= 0 {
		errs = append(errs, fmt.Errorf("MAILFLOW_ITEM_TIMEOUT must be positive, got %s", c.ItemTimeout))
	}
	if c.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("MAILFLOW_REFRESH_INTERVAL must not be negative, got %s", c.RefreshInterval))
	}

	if _, err := topology.Build(c.Topology()); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Topology returns the queue topology configuration.
func (c *Config) Topology() topology.Config {
	return topology.Config{
		Environment: c.Environment,
		Apps:        c.Apps,
		Prefix:      c.QueuePrefix,
	}
}

// Admin returns the admin service configuration.
func (c *Config) Admin() admin.Config {
	return admin.Config{
		IncludeUndeclared:     c.IncludeUndeclared,
		PeekVisibilityTimeout: c.PeekVisibilityTimeout,
		PeekWaitTime:          c.PeekWaitTime,
		DefaultMessageLimit:   c.DefaultMessageLimit,
		MaxMessageLimit:       c.MaxMessageLimit,
		BatchConcurrency:      c.BatchConcurrency,
		ItemTimeout:           c.ItemTimeout,
	}
}

// BrokerConfig returns the broker configuration.
func (c *Config) BrokerConfig() broker.Config {
	return broker.Config{
		Region:          c.Region,
		Endpoint:        c.SQSEndpoint,
		MaxMessages:     broker.MaxReceiveBatch,
		QueueNamePrefix: c.QueuePrefix,
	}
}

// Metrics returns the metrics configuration. The HTTP endpoint is only served by the
// long-running server.
func (c *Config) Metrics(serve bool) metrics.Config {
	config := metrics.Config{
		Enabled:   c.MetricsEnabled,
		Namespace: "mailflow_admin",
	}
	if serve {
		config.HTTPEndpoint = c.MetricsEndpoint
	}
	return config
}

// Tracing returns the tracing configuration.
func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:        c.TracingEnabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.TracingEndpoint,
		SampleRate:     1.0,
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getEnvInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		c.invalid = append(c.invalid, key)
		return defaultValue
	}
	return parsed
}

func (c *Config) getEnvBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		c.invalid = append(c.invalid, key)
		return defaultValue
	}
	return parsed
}

// getEnvDuration accepts a Go duration ("30s", "2m") or a plain number of seconds.
func (c *Config) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		c.invalid = append(c.invalid, key)
		return defaultValue
	}
	return parsed
}

func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
