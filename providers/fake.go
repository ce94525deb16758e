package providers

import (
	"context"
	"strings"
	"sync"
	"time"

	"checkout-service/models"

	"github.com/google/uuid"
)

// FakeRegistry is an in-memory Registry used by tests and by REGISTRY_MODE=fake.
//
// Scripted errors and statuses are consumed in order; once a script is empty
// the call succeeds (orders and payments get generated ids, payments report
// PAID).
type FakeRegistry struct {
	mu sync.Mutex

	BindErrs     []error
	SubmitErrs   []error
	OrderErrs    []error
	PaymentErrs  []error
	StatusErrs   []error
	Statuses     []models.PaymentState
	OrderIDs     []string
	PaymentIDs   []string
	DefaultState models.PaymentState

	calls []string
}

// maxRecordedCalls bounds the call log so a long-running fake server does
// not grow without limit. Only the most recent calls are kept.
const maxRecordedCalls = 256

// NewFakeRegistry returns a fake whose payments settle immediately.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{DefaultState: models.PaymentPaid}
}

func (f *FakeRegistry) record(call string) {
	if len(f.calls) >= maxRecordedCalls {
		f.calls = append(f.calls[:0], f.calls[len(f.calls)-maxRecordedCalls+1:]...)
	}
	f.calls = append(f.calls, call)
}

func pop[T any](q *[]T) (T, bool) {
	var zero T
	if len(*q) == 0 {
		return zero, false
	}
	v := (*q)[0]
	*q = (*q)[1:]
	return v, true
}

func popErr(q *[]error) error {
	err, _ := pop(q)
	return err
}

func (f *FakeRegistry) BindShippingAddress(_ context.Context, _ string, _ models.ShippingAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("bind")
	return popErr(&f.BindErrs)
}

func (f *FakeRegistry) SubmitCartItems(_ context.Context, _ string, _ []models.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("submit")
	return popErr(&f.SubmitErrs)
}

func (f *FakeRegistry) CreateOrder(_ context.Context, _ string) (models.RemoteOrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_order")
	if err := popErr(&f.OrderErrs); err != nil {
		return models.RemoteOrderResult{}, err
	}
	id, ok := pop(&f.OrderIDs)
	if !ok {
		id = "FAKE-" + strings.ToUpper(uuid.NewString()[:8])
	}
	return models.RemoteOrderResult{OrderID: id, CreatedAt: time.Now().UTC()}, nil
}

func (f *FakeRegistry) CreatePayment(_ context.Context, _ models.PaymentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_payment")
	if err := popErr(&f.PaymentErrs); err != nil {
		return "", err
	}
	id, ok := pop(&f.PaymentIDs)
	if !ok {
		id = "FAKEPAY-" + strings.ToUpper(uuid.NewString()[:8])
	}
	return id, nil
}

func (f *FakeRegistry) GetPaymentStatus(_ context.Context, _ string) (models.PaymentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("payment_status")
	if err := popErr(&f.StatusErrs); err != nil {
		return "", err
	}
	if s, ok := pop(&f.Statuses); ok {
		return s, nil
	}
	if f.DefaultState == "" {
		return models.PaymentPaid, nil
	}
	return f.DefaultState, nil
}

// Calls returns the ordered list of remote calls observed so far.
func (f *FakeRegistry) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times the named call was made.
func (f *FakeRegistry) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}
