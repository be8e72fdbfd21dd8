// Package admin implements the queue administration core: queue inspection, message peeking,
// redrive, batch mutation and the confirmation-gated purge.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/observability/logging"
	"mailflowAdmin/internal/topology"
)

// Config contains configuration for the admin service.
type Config struct {
	// QueuePrefix restricts the broker queue listing. Defaults to the topology prefix.
	QueuePrefix string

	// IncludeUndeclared reports broker queues that the topology does not declare.
	IncludeUndeclared bool

	// PeekVisibilityTimeout is the lease, in seconds, taken on messages received for inspection.
	PeekVisibilityTimeout int

	// PeekWaitTime is the long-poll wait, in seconds, of inspection receives.
	PeekWaitTime int

	// DefaultMessageLimit is the number of messages listed when no limit is given.
	DefaultMessageLimit int

	// MaxMessageLimit caps the number of messages listed in one call.
	MaxMessageLimit int

	// BatchConcurrency is the maximum number of concurrent broker calls of a batch or listing.
	BatchConcurrency int

	// ItemTimeout bounds each single-item broker call of a batch.
	ItemTimeout time.Duration
}

// DefaultConfig returns the default admin configuration.
func DefaultConfig() Config {
	return Config{
		IncludeUndeclared:     true,
		PeekVisibilityTimeout: 300,
		PeekWaitTime:          1,
		DefaultMessageLimit:   10,
		MaxMessageLimit:       50,
		BatchConcurrency:      5,
		ItemTimeout:           30 * time.Second,
	}
}

// Queue is a queue description enriched with live metrics.
type Queue struct {
	Name                     string
	URL                      string
	Kind                     topology.Kind
	VisibilityTimeoutSeconds int
	RetentionSeconds         int
	RedrivePolicy            *topology.RedrivePolicy
	MessageCount             int
	MessagesInFlight         int
	OldestMessageAgeSeconds  *int

	// Declared is true when the topology declares the queue.
	Declared bool

	// Warnings lists drift between the declared and the live queue.
	Warnings []string

	// Err is set when the live metrics of this queue could not be fetched.
	Err error
}

// MessageAttributes are the system attributes of a received message. Unknown values are nil.
type MessageAttributes struct {
	SentAt                  *time.Time
	ApproximateReceiveCount *int
	FirstReceivedAt         *time.Time
}

// Message is a message received for inspection.
type Message struct {
	ID                string
	ReceiptHandle     string
	Body              string
	Preview           string
	Attributes        MessageAttributes
	MessageAttributes map[string]broker.MessageAttribute

	// Severity is the display band of the receive count.
	Severity Severity
}

// Service is the queue administration core.
type Service struct {
	// broker is the administered message broker.
	broker broker.Broker

	// topology is the declared queue set.
	topology *topology.Topology

	// config contains configuration for the service.
	config Config

	// logger is the logger for the service.
	logger logging.Logger

	// urls caches resolved queue URLs by name.
	urls map[string]string

	// urlsMutex protects urls.
	urlsMutex sync.RWMutex
}

// NewService creates a new Service. Zero numeric settings take their defaults.
func NewService(b broker.Broker, topo *topology.Topology, config Config) (*Service, error) {
	if b == nil {
		return nil, errors.New("broker is nil")
	}
	if topo == nil {
		return nil, errors.New("topology is nil")
	}

	defaults := DefaultConfig()
	if config.QueuePrefix == "" {
		config.QueuePrefix = topo.Prefix() + "-"
	}
	if config.PeekVisibilityTimeout <= 0 {
		config.PeekVisibilityTimeout = defaults.PeekVisibilityTimeout
	}
	if config.PeekWaitTime < 0 {
		config.PeekWaitTime = 0
	}
	if config.DefaultMessageLimit <= 0 {
		config.DefaultMessageLimit = defaults.DefaultMessageLimit
	}
	if config.MaxMessageLimit <= 0 {
		config.MaxMessageLimit = defaults.MaxMessageLimit
	}
	if config.DefaultMessageLimit > config.MaxMessageLimit {
		config.DefaultMessageLimit = config.MaxMessageLimit
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = defaults.BatchConcurrency
	}
	if config.ItemTimeout <= 0 {
		config.ItemTimeout = defaults.ItemTimeout
	}

	return &Service{
		broker:   b,
		topology: topo,
		config:   config,
		logger:   logging.WithField("component", "admin"),
		urls:     make(map[string]string),
	}, nil
}

// Topology returns the declared queue set.
func (s *Service) Topology() *topology.Topology {
	return s.topology
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}

// queueURL resolves a queue name, caching successful lookups.
func (s *Service) queueURL(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: queue name is required", ErrInvalidRequest)
	}

	s.urlsMutex.RLock()
	url, ok := s.urls[name]
	s.urlsMutex.RUnlock()
	if ok {
		return url, nil
	}

	url, err := s.broker.QueueURL(ctx, name)
	if err != nil {
		return "", err
	}
	s.rememberURL(name, url)
	return url, nil
}

func (s *Service) rememberURL(name, url string) {
	s.urlsMutex.Lock()
	s.urls[name] = url
	s.urlsMutex.Unlock()
}

// describe returns the static description of a queue: the declared one if the topology
// knows it, otherwise a description classified from the name.
func (s *Service) describe(name string) Queue {
	if declared, ok := s.topology.Lookup(name); ok {
		return Queue{
			Name:                     declared.Name,
			Kind:                     declared.Kind,
			VisibilityTimeoutSeconds: declared.VisibilityTimeoutSeconds,
			RetentionSeconds:         declared.RetentionSeconds,
			RedrivePolicy:            declared.RedrivePolicy,
			Declared:                 true,
		}
	}
	return Queue{
		Name: name,
		Kind: topology.ClassifyName(name),
	}
}

// receiptPrefix shortens a receipt handle for logging.
func receiptPrefix(handle string) string {
	if len(handle) > 20 {
		return handle[:20]
	}
	return handle
}
