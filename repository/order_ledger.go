package repository

import (
	"context"
	"errors"
	"time"

	"checkout-service/models"

	"gorm.io/gorm"
)

// ErrOrderNotFound is returned by every ledger backend for unknown ids.
var ErrOrderNotFound = errors.New("order not found")

// OrderLedger is the durable sink for every checkout attempt. Orders are
// written once; the only later mutation is attaching a payment status.
type OrderLedger interface {
	Record(ctx context.Context, order *models.LocalOrder) error
	AttachPaymentStatus(ctx context.Context, localID, paymentStatus string) error
	FindByLocalID(ctx context.Context, localID string) (*models.LocalOrder, error)
	FindByRemoteOrderID(ctx context.Context, remoteOrderID string) (*models.LocalOrder, error)
	FindByClientID(ctx context.Context, clientID string, page, limit int) ([]models.LocalOrder, int64, error)
}

// GormOrderLedger implements OrderLedger using GORM
type GormOrderLedger struct {
	db *gorm.DB
}

// NewGormOrderLedger creates a new instance of GormOrderLedger
func NewGormOrderLedger(db *gorm.DB) OrderLedger {
	return &GormOrderLedger{db: db}
}

// Record inserts the order. A second insert with the same local id fails on
// the primary key.
func (r *GormOrderLedger) Record(ctx context.Context, order *models.LocalOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// AttachPaymentStatus updates the payment status snapshot of an existing order
func (r *GormOrderLedger) AttachPaymentStatus(ctx context.Context, localID, paymentStatus string) error {
	res := r.db.WithContext(ctx).
		Model(&models.LocalOrder{}).
		Where("local_id = ?", localID).
		Updates(map[string]interface{}{
			"payment_status": paymentStatus,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *GormOrderLedger) FindByLocalID(ctx context.Context, localID string) (*models.LocalOrder, error) {
	var order models.LocalOrder
	if err := r.db.WithContext(ctx).
		Where("local_id = ?", localID).
		First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *GormOrderLedger) FindByRemoteOrderID(ctx context.Context, remoteOrderID string) (*models.LocalOrder, error) {
	var order models.LocalOrder
	if err := r.db.WithContext(ctx).
		Where("remote_order_id = ?", remoteOrderID).
		Order("created_at DESC").
		First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// FindByClientID retrieves a client's order history with pagination
func (r *GormOrderLedger) FindByClientID(ctx context.Context, clientID string, page, limit int) ([]models.LocalOrder, int64, error) {
	var orders []models.LocalOrder
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.LocalOrder{}).
		Where("client_id = ?", clientID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	return err
}
