package services_test

import (
	"context"
	"sync"
	"time"

	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/repository"
	"checkout-service/retry"
	"checkout-service/services"

	"go.uber.org/zap"
)

// ---- mock ledger ----

type mockLedger struct {
	mu        sync.Mutex
	orders    map[string]*models.LocalOrder
	records   int
	recordErr error
	findErr   error
	attachErr error
}

func newMockLedger() *mockLedger {
	return &mockLedger{orders: map[string]*models.LocalOrder{}}
}

func (m *mockLedger) Record(_ context.Context, o *models.LocalOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records++
	if m.recordErr != nil {
		return m.recordErr
	}
	m.orders[o.LocalID] = o
	return nil
}

func (m *mockLedger) AttachPaymentStatus(_ context.Context, localID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	o, ok := m.orders[localID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.PaymentStatus = status
	return nil
}

func (m *mockLedger) FindByLocalID(_ context.Context, localID string) (*models.LocalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	o, ok := m.orders[localID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockLedger) FindByRemoteOrderID(_ context.Context, remoteID string) (*models.LocalOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, o := range m.orders {
		if o.RemoteOrderID != nil && *o.RemoteOrderID == remoteID {
			return o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockLedger) FindByClientID(_ context.Context, clientID string, _, _ int) ([]models.LocalOrder, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LocalOrder
	for _, o := range m.orders {
		if o.ClientID == clientID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// ---- mock idempotency store ----

type mockIdem struct {
	mu       sync.Mutex
	keys     map[string]repository.IdempotencyRecord
	released []string
	err      error
}

func newMockIdem() *mockIdem {
	return &mockIdem{keys: map[string]repository.IdempotencyRecord{}}
}

func (m *mockIdem) Reserve(_ context.Context, key, fingerprint string, _ time.Duration) (repository.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return repository.IdempotencyRecord{}, false, m.err
	}
	if rec, ok := m.keys[key]; ok {
		return rec, false, nil
	}
	m.keys[key] = repository.IdempotencyRecord{Fingerprint: fingerprint}
	return repository.IdempotencyRecord{}, true, nil
}

func (m *mockIdem) Complete(_ context.Context, key, fingerprint, localID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = repository.IdempotencyRecord{LocalID: localID, Fingerprint: fingerprint}
	return nil
}

func (m *mockIdem) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

// ---- mock SNS / metrics ----

type mockSNS struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (m *mockSNS) Publish(_ context.Context, _ string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return m.err
}

type mockMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *mockMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
	return nil
}

func (m *mockMetrics) RecordLatency(_ context.Context, _ string, _ time.Duration, _ map[string]string) error {
	return nil
}

// ---- helpers ----

var fixedNow = time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// sleepRecorder is a retry.Sleeper that records requested delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func noWaitPolicy(s *sleepRecorder) retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = s.sleep
	return p
}

func sampleIntent() models.OrderIntent {
	return models.OrderIntent{
		ClientID: "client-1",
		Customer: models.Customer{Email: "jane@example.com", Name: "Jane Doe"},
		Items:    []models.CartItem{{ProductID: "A", ProductName: "Product A", Quantity: 2, UnitPrice: 25.00}},
		Address:  models.NewShippingAddress("1 Main St", "", "Lisbon", "", "1000-001", "Portugal", "pt"),
		Currency: "EUR",
	}
}

type harness struct {
	registry *providers.FakeRegistry
	ledger   *mockLedger
	idem     *mockIdem
	sns      *mockSNS
	metrics  *mockMetrics
	sleeps   *sleepRecorder
	svc      services.CheckoutService
}

func newHarness() *harness {
	h := &harness{
		registry: providers.NewFakeRegistry(),
		ledger:   newMockLedger(),
		idem:     newMockIdem(),
		sns:      &mockSNS{},
		metrics:  &mockMetrics{},
		sleeps:   &sleepRecorder{},
	}
	logger := zap.NewNop()
	policy := noWaitPolicy(h.sleeps)
	h.svc = services.NewCheckoutService(services.CheckoutDeps{
		Coordinator: services.NewOrderCoordinator(h.registry, policy, logger),
		Payments:    services.NewPaymentPoller(h.registry, policy, logger, services.WithPollSleeper(h.sleeps.sleep)),
		Fallback:    services.NewFallbackRecorder(fixedClock),
		Ledger:      h.ledger,
		Idempotency: h.idem,
		SNS:         h.sns,
		SNSTopicArn: "arn:aws:sns:us-east-1:000000000000:order-events",
		Metrics:     h.metrics,
		Now:         fixedClock,
		Logger:      logger,
	})
	return h
}
