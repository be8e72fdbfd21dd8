// Package topology describes the mailflow queues, their kinds and their retry contracts.
//
// A Topology is built once at startup and passed by handle to every component that needs it.
// It is never mutated after Build returns; accessors hand out copies.
package topology

import (
	"errors"
	"fmt"
	"strings"

	"mailflowAdmin/internal/broker"
)

// Kind is the delivery contract of a queue.
type Kind string

// Queue kinds.
const (
	KindInbound    Kind = "inbound"
	KindOutbound   Kind = "outbound"
	KindDefault    Kind = "default"
	KindDeadLetter Kind = "dead-letter"
)

// Defaults applied to every provisioned queue.
const (
	DefaultPrefix             = "mailflow"
	DefaultReceiveWaitTime    = 20
	DefaultRetentionSeconds   = 14 * 24 * 60 * 60
	OutboundVisibilityTimeout = 3600
	InboundVisibilityTimeout  = 300
	DefaultVisibilityTimeout  = 3600
	DLQVisibilityTimeout      = 30
	OutboundMaxReceiveCount   = 3
)

// Reserved logical names that cannot be used as application names.
var reservedNames = map[string]struct{}{
	"outbound": {},
	"default":  {},
	"dlq":      {},
}

// ErrInvalidConfig is returned by Build for an unusable configuration.
var ErrInvalidConfig = errors.New("invalid topology configuration")

// RedrivePolicy links a queue to its dead-letter queue.
type RedrivePolicy struct {
	TargetDeadLetterQueue string `json:"targetDeadLetterQueue"`
	MaxReceiveCount       int    `json:"maxReceiveCount"`
}

// Queue is a declared queue.
type Queue struct {
	Name                     string         `json:"name"`
	Kind                     Kind           `json:"kind"`
	App                      string         `json:"app,omitempty"`
	VisibilityTimeoutSeconds int            `json:"visibilityTimeoutSeconds"`
	RetentionSeconds         int            `json:"retentionSeconds"`
	ReceiveWaitTimeSeconds   int            `json:"receiveWaitTimeSeconds"`
	RedrivePolicy            *RedrivePolicy `json:"redrivePolicy,omitempty"`
}

func (q Queue) clone() Queue {
	if q.RedrivePolicy != nil {
		policy := *q.RedrivePolicy
		q.RedrivePolicy = &policy
	}
	return q
}

// Config is the provisioning-time description of a topology.
type Config struct {
	// Environment is appended to every queue name, e.g. "dev" or "prod".
	Environment string

	// Apps lists the logical application names; each gets an inbound queue.
	Apps []string

	// Prefix is prepended to every queue name. Defaults to DefaultPrefix.
	Prefix string
}

// Topology is the immutable set of declared queues.
type Topology struct {
	environment string
	prefix      string
	queues      []Queue
	byName      map[string]int
	outbound    string
	deadLetter  string
}

// Build produces the queue set for an environment: one inbound queue per app, a shared
// outbound queue, a default queue and a dead-letter queue wired only to the outbound queue.
func Build(config Config) (*Topology, error) {
	env := strings.TrimSpace(config.Environment)
	if env == "" {
		return nil, fmt.Errorf("%w: environment is required", ErrInvalidConfig)
	}
	prefix := strings.TrimSpace(config.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}

	t := &Topology{
		environment: env,
		prefix:      prefix,
		byName:      make(map[string]int),
	}

	seen := make(map[string]struct{}, len(config.Apps))
	for _, raw := range config.Apps {
		app := strings.TrimSpace(raw)
		if app == "" {
			return nil, fmt.Errorf("%w: empty app name", ErrInvalidConfig)
		}
		if _, ok := reservedNames[strings.ToLower(app)]; ok {
			return nil, fmt.Errorf("%w: app name %q is reserved", ErrInvalidConfig, app)
		}
		if _, ok := seen[app]; ok {
			return nil, fmt.Errorf("%w: duplicate app name %q", ErrInvalidConfig, app)
		}
		seen[app] = struct{}{}

		t.add(Queue{
			Name:                     t.name(app),
			Kind:                     KindInbound,
			App:                      app,
			VisibilityTimeoutSeconds: InboundVisibilityTimeout,
		})
	}

	t.deadLetter = t.name("dlq")
	t.outbound = t.name("outbound")

	t.add(Queue{
		Name:                     t.outbound,
		Kind:                     KindOutbound,
		VisibilityTimeoutSeconds: OutboundVisibilityTimeout,
		RedrivePolicy: &RedrivePolicy{
			TargetDeadLetterQueue: t.deadLetter,
			MaxReceiveCount:       OutboundMaxReceiveCount,
		},
	})
	t.add(Queue{
		Name:                     t.name("default"),
		Kind:                     KindDefault,
		VisibilityTimeoutSeconds: DefaultVisibilityTimeout,
	})
	t.add(Queue{
		Name:                     t.deadLetter,
		Kind:                     KindDeadLetter,
		VisibilityTimeoutSeconds: DLQVisibilityTimeout,
	})

	if err := t.Check(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Topology) name(logical string) string {
	return fmt.Sprintf("%s-%s-%s", t.prefix, logical, t.environment)
}

func (t *Topology) add(q Queue) {
	q.RetentionSeconds = DefaultRetentionSeconds
	q.ReceiveWaitTimeSeconds = DefaultReceiveWaitTime
	t.byName[q.Name] = len(t.queues)
	t.queues = append(t.queues, q)
}

// Environment returns the environment name.
func (t *Topology) Environment() string { return t.environment }

// Prefix returns the queue name prefix.
func (t *Topology) Prefix() string { return t.prefix }

// Queues returns the declared queues in declaration order.
func (t *Topology) Queues() []Queue {
	out := make([]Queue, len(t.queues))
	for i, q := range t.queues {
		out[i] = q.clone()
	}
	return out
}

// Lookup returns the declared queue with the given name.
func (t *Topology) Lookup(name string) (Queue, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Queue{}, false
	}
	return t.queues[i].clone(), true
}

// Outbound returns the shared outbound queue.
func (t *Topology) Outbound() Queue {
	q, _ := t.Lookup(t.outbound)
	return q
}

// DeadLetterQueue returns the dead-letter queue.
func (t *Topology) DeadLetterQueue() Queue {
	q, _ := t.Lookup(t.deadLetter)
	return q
}

// SourcesFor returns the declared queues whose redrive policy targets dlqName.
func (t *Topology) SourcesFor(dlqName string) []Queue {
	var out []Queue
	for _, q := range t.queues {
		if q.RedrivePolicy != nil && q.RedrivePolicy.TargetDeadLetterQueue == dlqName {
			out = append(out, q.clone())
		}
	}
	return out
}

// Check verifies the redrive asymmetry: inbound queues carry no redrive policy, and the
// outbound queue, and only it, points at the dead-letter queue with the fixed receive count.
func (t *Topology) Check() error {
	for _, q := range t.queues {
		switch q.Kind {
		case KindOutbound:
			if q.RedrivePolicy == nil {
				return fmt.Errorf("%w: outbound queue %s has no redrive policy", ErrInvalidConfig, q.Name)
			}
			if q.RedrivePolicy.TargetDeadLetterQueue != t.deadLetter || q.RedrivePolicy.MaxReceiveCount != OutboundMaxReceiveCount {
				return fmt.Errorf("%w: outbound queue %s must redrive to %s after %d receives",
					ErrInvalidConfig, q.Name, t.deadLetter, OutboundMaxReceiveCount)
			}
		default:
			if q.RedrivePolicy != nil {
				return fmt.Errorf("%w: %s queue %s must not carry a redrive policy", ErrInvalidConfig, q.Kind, q.Name)
			}
		}
	}
	return nil
}

// CheckLive compares a declared queue with the state reported by the broker and returns
// human-readable drift warnings. An empty result means no drift.
func CheckLive(declared Queue, live broker.QueueAttributes) []string {
	var warnings []string

	switch {
	case declared.RedrivePolicy == nil && live.RedrivePolicy != nil:
		warnings = append(warnings, fmt.Sprintf(
			"queue %s is declared without a redrive policy but redrives to %s after %d receives; inspection may dead-letter messages",
			declared.Name, live.RedrivePolicy.TargetQueueName(), live.RedrivePolicy.MaxReceiveCount))
	case declared.RedrivePolicy != nil && live.RedrivePolicy == nil:
		warnings = append(warnings, fmt.Sprintf(
			"queue %s is declared to redrive to %s but has no live redrive policy",
			declared.Name, declared.RedrivePolicy.TargetDeadLetterQueue))
	case declared.RedrivePolicy != nil && live.RedrivePolicy != nil:
		if target := live.RedrivePolicy.TargetQueueName(); target != declared.RedrivePolicy.TargetDeadLetterQueue {
			warnings = append(warnings, fmt.Sprintf("queue %s redrives to %s, declared %s",
				declared.Name, target, declared.RedrivePolicy.TargetDeadLetterQueue))
		}
		if live.RedrivePolicy.MaxReceiveCount != declared.RedrivePolicy.MaxReceiveCount {
			warnings = append(warnings, fmt.Sprintf("queue %s maxReceiveCount is %d, declared %d",
				declared.Name, live.RedrivePolicy.MaxReceiveCount, declared.RedrivePolicy.MaxReceiveCount))
		}
	}

	if live.VisibilityTimeout != 0 && live.VisibilityTimeout != declared.VisibilityTimeoutSeconds {
		warnings = append(warnings, fmt.Sprintf("queue %s visibility timeout is %ds, declared %ds",
			declared.Name, live.VisibilityTimeout, declared.VisibilityTimeoutSeconds))
	}
	if live.MessageRetentionPeriod != 0 && live.MessageRetentionPeriod != declared.RetentionSeconds {
		warnings = append(warnings, fmt.Sprintf("queue %s retention is %ds, declared %ds",
			declared.Name, live.MessageRetentionPeriod, declared.RetentionSeconds))
	}

	return warnings
}

// ClassifyName guesses the kind of a queue that is not declared in the topology from its name.
func ClassifyName(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, "-dlq") || strings.HasPrefix(lower, "dlq-") || strings.Contains(lower, "-dlq-"):
		return KindDeadLetter
	case strings.Contains(lower, "outbound"):
		return KindOutbound
	case strings.Contains(lower, "default"):
		return KindDefault
	default:
		return KindInbound
	}
}
