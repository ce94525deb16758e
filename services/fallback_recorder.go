package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"checkout-service/models"
)

const (
	localIDPrefix   = "LOCAL-"
	localIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	localIDSuffix   = 4
)

// FallbackRecorder drafts PENDING_SYNC orders when the remote side could not
// confirm a checkout.
type FallbackRecorder struct {
	now    func() time.Time
	random io.Reader

	mu     sync.Mutex
	day    string
	issued map[string]struct{}
}

func NewFallbackRecorder(now func() time.Time) *FallbackRecorder {
	if now == nil {
		now = time.Now
	}
	return &FallbackRecorder{now: now, random: rand.Reader, issued: map[string]struct{}{}}
}

// NewLocalID returns LOCAL-YYYYMMDD-XXXX. Ids issued by this recorder on the
// same date never repeat.
func (f *FallbackRecorder) NewLocalID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	day := f.now().UTC().Format("20060102")
	if day != f.day {
		f.day = day
		f.issued = map[string]struct{}{}
	}
	if len(f.issued) >= pow(len(localIDAlphabet), localIDSuffix) {
		return "", fmt.Errorf("local id space exhausted for %s", day)
	}

	for {
		suffix, err := f.randomSuffix()
		if err != nil {
			return "", fmt.Errorf("generate local id: %w", err)
		}
		id := localIDPrefix + day + "-" + suffix
		if _, dup := f.issued[id]; dup {
			continue
		}
		f.issued[id] = struct{}{}
		return id, nil
	}
}

func (f *FallbackRecorder) randomSuffix() (string, error) {
	buf := make([]byte, localIDSuffix)
	max := big.NewInt(int64(len(localIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(f.random, max)
		if err != nil {
			return "", err
		}
		buf[i] = localIDAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func pow(base, exp int) int {
	n := 1
	for i := 0; i < exp; i++ {
		n *= base
	}
	return n
}

// Draft builds the unsaved fallback order. remoteOrderID and paymentID are
// carried when the remote order was created before the failure.
func (f *FallbackRecorder) Draft(intent models.OrderIntent, remoteOrderID, paymentID *string, cause error) (*models.LocalOrder, error) {
	localID, err := f.NewLocalID()
	if err != nil {
		return nil, err
	}
	order, err := models.NewLocalOrder(localID, intent, f.now().UTC())
	if err != nil {
		return nil, err
	}
	order.RemoteOrderID = remoteOrderID
	order.PaymentID = paymentID
	order.Status = models.OrderStatusPendingSync
	order.PaymentStatus = models.PaymentStatusAwaitingProcessing
	if cause != nil {
		order.FailureReason = cause.Error()
	}
	return order, nil
}
