// Package metrics provides metrics utilities for the application.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailflowAdmin/internal/observability/logging"
)

// Config contains configuration for the metrics.
type Config struct {
	// Enabled indicates whether metrics are enabled.
	Enabled bool

	// Namespace is the namespace for the metrics.
	Namespace string

	// Subsystem is the subsystem for the metrics.
	Subsystem string

	// HTTPEndpoint is the endpoint for the HTTP server. Empty disables the server.
	HTTPEndpoint string

	// Registerer receives the collectors. Defaults to the global Prometheus registry.
	Registerer prometheus.Registerer

	// Gatherer is served on /metrics. Defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Metrics contains the metrics for the application.
type Metrics struct {
	// QueueMessages is the number of visible messages per queue.
	QueueMessages *prometheus.GaugeVec

	// QueueMessagesInFlight is the number of received but undeleted messages per queue.
	QueueMessagesInFlight *prometheus.GaugeVec

	// Operations counts administrative operations by outcome.
	Operations *prometheus.CounterVec

	// BatchItems counts batch items by operation and outcome.
	BatchItems *prometheus.CounterVec

	// BrokerCallDuration is the latency of broker calls.
	BrokerCallDuration *prometheus.HistogramVec

	// MessagesPeeked counts messages returned by inspections. Every one of them consumed a receive.
	MessagesPeeked *prometheus.CounterVec

	// DuplicateReceives counts deliveries dropped by inspection deduplication.
	DuplicateReceives *prometheus.CounterVec

	// config is the configuration for the metrics.
	config Config

	// server is the HTTP server for the metrics.
	server *http.Server
}

// NewMetrics creates a new Metrics.
func NewMetrics(config Config) *Metrics {
	if !config.Enabled {
		return &Metrics{
			config: config,
		}
	}

	// Set default values
	if config.Namespace == "" {
		config.Namespace = "mailflow_admin"
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	factory := promauto.With(config.Registerer)

	metrics := &Metrics{
		QueueMessages: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "queue_messages",
			Help:      "The approximate number of visible messages in the queue",
		}, []string{"queue", "kind"}),

		QueueMessagesInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "queue_messages_in_flight",
			Help:      "The approximate number of received but undeleted messages in the queue",
		}, []string{"queue", "kind"}),

		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "operations_total",
			Help:      "The total number of administrative operations",
		}, []string{"operation", "outcome"}),

		BatchItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "batch_items_total",
			Help:      "The total number of batch items processed",
		}, []string{"operation", "outcome"}),

		BrokerCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "broker_call_duration_seconds",
			Help:      "The duration of broker calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call", "status"}),

		MessagesPeeked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "messages_peeked_total",
			Help:      "The total number of messages returned by inspections",
		}, []string{"queue"}),

		DuplicateReceives: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "duplicate_receives_total",
			Help:      "The total number of duplicate deliveries dropped during inspection",
		}, []string{"queue"}),

		config: config,
	}

	// Start the HTTP server
	if config.HTTPEndpoint != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))

		server := &http.Server{
			Addr:              config.HTTPEndpoint,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logging.Infof("Starting metrics HTTP server on %s", config.HTTPEndpoint)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Errorf("Metrics HTTP server error: %v", err)
			}
		}()

		metrics.server = server
	}

	logging.Info("Prometheus metrics initialized")

	return metrics
}

// SetQueueDepth records the live depth of a queue.
func (m *Metrics) SetQueueDepth(queue, kind string, visible, inFlight int) {
	if !m.config.Enabled {
		return
	}
	m.QueueMessages.WithLabelValues(queue, kind).Set(float64(visible))
	m.QueueMessagesInFlight.WithLabelValues(queue, kind).Set(float64(inFlight))
}

// ObserveOperation counts an administrative operation.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if !m.config.Enabled {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveBatchItem counts a batch item.
func (m *Metrics) ObserveBatchItem(operation, outcome string) {
	if !m.config.Enabled {
		return
	}
	m.BatchItems.WithLabelValues(operation, outcome).Inc()
}

// ObserveBrokerCall records the duration of a broker call.
func (m *Metrics) ObserveBrokerCall(call string, duration time.Duration, err error) {
	if !m.config.Enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BrokerCallDuration.WithLabelValues(call, status).Observe(duration.Seconds())
}

// ObservePeek records the result of an inspection.
func (m *Metrics) ObservePeek(queue string, returned, duplicates int) {
	if !m.config.Enabled {
		return
	}
	m.MessagesPeeked.WithLabelValues(queue).Add(float64(returned))
	if duplicates > 0 {
		m.DuplicateReceives.WithLabelValues(queue).Add(float64(duplicates))
	}
}

// Shutdown shuts down the metrics.
func (m *Metrics) Shutdown() error {
	if m.server != nil {
		logging.Info("Shutting down metrics HTTP server")
		return m.server.Close()
	}
	return nil
}

// DefaultMetrics is the default metrics for the application.
var DefaultMetrics *Metrics

// InitMetrics initializes the default metrics.
func InitMetrics(config Config) {
	DefaultMetrics = NewMetrics(config)
}

// SetQueueDepth records the live depth of a queue using the default metrics.
func SetQueueDepth(queue, kind string, visible, inFlight int) {
	if DefaultMetrics != nil {
		DefaultMetrics.SetQueueDepth(queue, kind, visible, inFlight)
	}
}

// ObserveOperation counts an administrative operation using the default metrics.
func ObserveOperation(operation, outcome string) {
	if DefaultMetrics != nil {
		DefaultMetrics.ObserveOperation(operation, outcome)
	}
}

// ObserveBatchItem counts a batch item using the default metrics.
func ObserveBatchItem(operation, outcome string) {
	if DefaultMetrics != nil {
		DefaultMetrics.ObserveBatchItem(operation, outcome)
	}
}

// ObserveBrokerCall records the duration of a broker call using the default metrics.
func ObserveBrokerCall(call string, duration time.Duration, err error) {
	if DefaultMetrics != nil {
		DefaultMetrics.ObserveBrokerCall(call, duration, err)
	}
}

// ObservePeek records the result of an inspection using the default metrics.
func ObservePeek(queue string, returned, duplicates int) {
	if DefaultMetrics != nil {
		DefaultMetrics.ObservePeek(queue, returned, duplicates)
	}
}

// Shutdown shuts down the default metrics.
func Shutdown() error {
	if DefaultMetrics != nil {
		return DefaultMetrics.Shutdown()
	}
	return nil
}
