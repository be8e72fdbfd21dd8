package admin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/broker/memory"
	"mailflowAdmin/internal/topology"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// hookedBroker wraps the in-memory broker, counts calls and lets a test replace any call.
type hookedBroker struct {
	*memory.Broker

	mu    sync.Mutex
	calls map[string]int

	list    func(ctx context.Context, prefix string) ([]broker.QueueRef, error)
	attrs   func(ctx context.Context, url string) (broker.QueueAttributes, error)
	receive func(ctx context.Context, url string, opts broker.ReceiveOptions) ([]broker.Message, error)
	send    func(ctx context.Context, url, body string, attrs map[string]broker.MessageAttribute) (string, error)
	delete  func(ctx context.Context, url, handle string) error
	purge   func(ctx context.Context, url string) error
}

func (h *hookedBroker) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[call]++
}

func (h *hookedBroker) Calls(call string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[call]
}

func (h *hookedBroker) ListQueues(ctx context.Context, prefix string) ([]broker.QueueRef, error) {
	h.record("list")
	if h.list != nil {
		return h.list(ctx, prefix)
	}
	return h.Broker.ListQueues(ctx, prefix)
}

func (h *hookedBroker) QueueURL(ctx context.Context, name string) (string, error) {
	h.record("url")
	return h.Broker.QueueURL(ctx, name)
}

func (h *hookedBroker) GetQueueAttributes(ctx context.Context, url string) (broker.QueueAttributes, error) {
	h.record("attrs")
	if h.attrs != nil {
		return h.attrs(ctx, url)
	}
	return h.Broker.GetQueueAttributes(ctx, url)
}

func (h *hookedBroker) ReceiveMessages(ctx context.Context, url string, opts broker.ReceiveOptions) ([]broker.Message, error) {
	h.record("receive")
	if h.receive != nil {
		return h.receive(ctx, url, opts)
	}
	return h.Broker.ReceiveMessages(ctx, url, opts)
}

func (h *hookedBroker) SendMessage(ctx context.Context, url, body string, attrs map[string]broker.MessageAttribute) (string, error) {
	h.record("send")
	if h.send != nil {
		return h.send(ctx, url, body, attrs)
	}
	return h.Broker.SendMessage(ctx, url, body, attrs)
}

func (h *hookedBroker) DeleteMessage(ctx context.Context, url, handle string) error {
	h.record("delete")
	if h.delete != nil {
		return h.delete(ctx, url, handle)
	}
	return h.Broker.DeleteMessage(ctx, url, handle)
}

func (h *hookedBroker) PurgeQueue(ctx context.Context, url string) error {
	h.record("purge")
	if h.purge != nil {
		return h.purge(ctx, url)
	}
	return h.Broker.PurgeQueue(ctx, url)
}

type fixture struct {
	service  *Service
	broker   *hookedBroker
	clock    *testClock
	topology *topology.Topology
}

func newFixture(t *testing.T, configure ...func(*Config)) *fixture {
	t.Helper()

	topo, err := topology.Build(topology.Config{Environment: "dev", Apps: []string{"app1", "app2"}})
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	mem := memory.NewBroker(memory.WithClock(clock.Now))
	mem.Provision(topo)

	hooked := &hookedBroker{Broker: mem, calls: make(map[string]int)}

	config := DefaultConfig()
	for _, fn := range configure {
		fn(&config)
	}
	service, err := NewService(hooked, topo, config)
	require.NoError(t, err)

	return &fixture{service: service, broker: hooked, clock: clock, topology: topo}
}

func (f *fixture) url(t *testing.T, name string) string {
	t.Helper()
	url, err := f.broker.Broker.QueueURL(context.Background(), name)
	require.NoError(t, err)
	return url
}

// seed sends n messages to a queue and returns their IDs.
func (f *fixture) seed(t *testing.T, queue string, bodies ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(bodies))
	for _, body := range bodies {
		id, err := f.broker.Broker.SendMessage(context.Background(), f.url(t, queue), body, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

// lease receives up to n messages from a queue, acquiring their receipt handles.
func (f *fixture) lease(t *testing.T, queue string, n int) []broker.Message {
	t.Helper()
	var out []broker.Message
	for len(out) < n {
		msgs, err := f.broker.Broker.ReceiveMessages(context.Background(), f.url(t, queue), broker.ReceiveOptions{
			MaxMessages:       n - len(out),
			VisibilityTimeout: 300,
		})
		require.NoError(t, err)
		if len(msgs) == 0 {
			break
		}
		out = append(out, msgs...)
	}
	require.Len(t, out, n)
	return out
}

func (f *fixture) ids(queue string) []string {
	var ids []string
	for _, m := range f.broker.Snapshot(queue) {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestNewService_Defaults(t *testing.T) {
	topo, err := topology.Build(topology.Config{Environment: "dev"})
	require.NoError(t, err)

	_, err = NewService(nil, topo, Config{})
	assert.Error(t, err)
	_, err = NewService(memory.NewBroker(), nil, Config{})
	assert.Error(t, err)

	s, err := NewService(memory.NewBroker(), topo, Config{DefaultMessageLimit: 80, MaxMessageLimit: 20})
	require.NoError(t, err)
	cfg := s.Config()
	assert.Equal(t, "mailflow-", cfg.QueuePrefix)
	assert.Equal(t, 20, cfg.DefaultMessageLimit)
	assert.Equal(t, 300, cfg.PeekVisibilityTimeout)
	assert.Equal(t, 5, cfg.BatchConcurrency)
	assert.Equal(t, 30*time.Second, cfg.ItemTimeout)
	assert.Same(t, topo, s.Topology())
}

func TestService_CachesQueueURLs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.service.GetQueue(ctx, "mailflow-app1-dev")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.broker.Calls("url"))
}
