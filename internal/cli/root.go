// Package cli contains the cobra commands of the mailflow-admin binary.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/cobra"

	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/broker/memory"
	sqsbroker "mailflowAdmin/internal/broker/sqs"
	"mailflowAdmin/internal/config"
	"mailflowAdmin/internal/observability/logging"
	"mailflowAdmin/internal/observability/metrics"
	"mailflowAdmin/internal/observability/tracing"
	"mailflowAdmin/internal/topology"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	// Persistent flags.
	envFile    string
	logLevel   string
	brokerKind string

	config   *config.Config
	topology *topology.Topology
	broker   broker.Broker
	service  *admin.Service
}

// NewRootCommand constructs the mailflow-admin root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "mailflow-admin",
		Short: "Inspect and repair the mailflow queues",
		Long: `mailflow-admin inspects the mailflow SQS queues and moves, deletes or purges their messages.

Inspecting messages receives them: they become invisible to consumers for the peek
visibility timeout and their receive count grows, which can dead-letter messages of
queues with a redrive policy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Load configuration from this .env file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.brokerKind, "broker", "", "Broker: sqs|memory (overrides MAILFLOW_BROKER)")

	root.AddCommand(
		newServeCommand(a),
		newTopologyCommand(a),
		newQueuesCommand(a),
		newMessagesCommand(a),
		newDeleteCommand(a),
		newRedriveCommand(a),
		newPurgeCommand(a),
	)
	return root
}

// setup loads the configuration and builds the admin service. serve enables the metrics
// endpoint.
func (a *app) setup(ctx context.Context, serve bool) error {
	if a.service != nil {
		return nil
	}

	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.brokerKind != "" {
		cfg.Broker = strings.ToLower(a.brokerKind)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.config = cfg

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if !serve {
		if l, ok := logging.DefaultLogger.(*logging.LogrusLogger); ok {
			l.SetOutput(os.Stderr)
		}
	}

	metrics.InitMetrics(cfg.Metrics(serve))
	if cfg.TracingEnabled {
		if err := tracing.InitTracer(cfg.Tracing()); err != nil {
			logging.WithError(err).Error("Failed to initialize tracer")
		}
	}

	topo, err := topology.Build(cfg.Topology())
	if err != nil {
		return err
	}
	a.topology = topo

	if a.broker == nil {
		b, err := newBroker(ctx, cfg, topo)
		if err != nil {
			return err
		}
		a.broker = b
	}

	service, err := admin.NewService(a.broker, topo, cfg.Admin())
	if err != nil {
		return err
	}
	a.service = service
	return nil
}

// shutdown flushes the observability exporters.
func (a *app) shutdown(ctx context.Context) {
	if err := metrics.Shutdown(); err != nil {
		logging.WithError(err).Error("Failed to shut down metrics")
	}
	if err := tracing.Shutdown(ctx); err != nil {
		logging.WithError(err).Error("Failed to shut down tracing")
	}
}

func newBroker(ctx context.Context, cfg *config.Config, topo *topology.Topology) (broker.Broker, error) {
	switch cfg.Broker {
	case config.BrokerMemory:
		b := memory.NewBroker()
		b.Provision(topo)
		logging.WithField("environment", topo.Environment()).Warn("Using the in-memory broker, changes are not persisted")
		return b, nil
	case config.BrokerSQS:
		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		var client *sqs.Client
		if cfg.SQSEndpoint != "" {
			endpoint := cfg.SQSEndpoint
			client = sqs.NewFromConfig(awsConfig, func(o *sqs.Options) {
				o.BaseEndpoint = &endpoint
			})
		} else {
			client = sqs.NewFromConfig(awsConfig)
		}
		return sqsbroker.NewBroker(client, cfg.BrokerConfig())
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}
