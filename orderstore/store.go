// Package orderstore persists orders. Every write bumps the order version,
// appends an audit row, an outbox event and the theater revision in one transaction.
package orderstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"cinema_pos/apperror"
	"cinema_pos/constants"
	"cinema_pos/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicate is returned by Create together with the order already stored
// under the same (theater, idempotency key).
var ErrDuplicate = errors.New("order already exists for idempotency key")

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) DB() *gorm.DB { return s.db }

// Create inserts a new order at version 1 and assigns its order number.
func (s *Store) Create(ctx context.Context, order *model.Order, actor string) (*model.Order, error) {
	if order.ID == "" || order.IdempotencyKey == "" {
		return nil, apperror.Validation("order id and idempotency key are required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.Order{}).
			Where("theater_id = ? AND idempotency_key = ?", order.TheaterId, order.IdempotencyKey).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicate
		}

		var theater model.Theater
		if err := tx.First(&theater, order.TheaterId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("theater not found")
			}
			return err
		}

		now := s.now()
		day := BusinessDay(now, theater.Timezone)
		number, err := nextNumber(tx, theater.ID, day)
		if err != nil {
			return err
		}

		order.OrderNumber = FormatOrderNumber(theater.Code, day, number)
		order.BusinessDay = day
		order.Version = 1
		order.CreatedAt = now
		order.UpdatedAt = now
		for i := range order.Items {
			order.Items[i].OrderId = order.ID
			order.Items[i].Position = i + 1
		}
		if err := tx.Omit("Audits").Create(order).Error; err != nil {
			return err
		}

		return record(tx, order, "", actor, "created", model.EventOrderCreated)
	})

	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, getErr := s.GetByIdempotencyKey(ctx, order.TheaterId, order.IdempotencyKey)
		if getErr != nil {
			return nil, getErr
		}
		return existing, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// BusinessDay is the calendar day of t in the theater timezone.
func BusinessDay(t time.Time, tz string) string {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		t = t.In(loc)
	}
	return t.Format("2006-01-02")
}

func FormatOrderNumber(code, day string, n int64) string {
	compact := day[0:4] + day[5:7] + day[8:10]
	return fmt.Sprintf("%s-%s-%04d", code, compact, n)
}

func nextNumber(tx *gorm.DB, theaterID uint, day string) (int64, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.OrderSequence{TheaterId: theaterID, BusinessDay: day}).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&model.OrderSequence{}).
		Where("theater_id = ? AND business_day = ?", theaterID, day).
		UpdateColumn("last_number", gorm.Expr("last_number + 1")).Error; err != nil {
		return 0, err
	}
	var seq model.OrderSequence
	if err := tx.Where("theater_id = ? AND business_day = ?", theaterID, day).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastNumber, nil
}

// record writes the audit row, outbox event and revision bump for order's current version.
func record(tx *gorm.DB, order *model.Order, from model.OrderStatus, actor, reason, eventType string) error {
	audit := model.OrderAudit{
		OrderId: order.ID,
		Version: order.Version,
		From:    from,
		To:      order.Status,
		Actor:   actor,
		Reason:  reason,
	}
	if err := tx.Create(&audit).Error; err != nil {
		return err
	}

	snapshot := *order
	snapshot.Audits = nil
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	event := model.OrderEvent{
		TheaterId: order.TheaterId,
		OrderId:   order.ID,
		Version:   order.Version,
		Type:      eventType,
		Status:    order.Status,
		Reason:    reason,
		Payload:   string(payload),
	}
	if err := tx.Create(&event).Error; err != nil {
		return err
	}

	return bumpRevision(tx, order.TheaterId)
}

func bumpRevision(tx *gorm.DB, theaterID uint) error {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.TheaterRevision{TheaterId: theaterID}).Error; err != nil {
		return err
	}
	return tx.Model(&model.TheaterRevision{}).
		Where("theater_id = ?", theaterID).
		UpdateColumn("revision", gorm.Expr("revision + 1")).Error
}

func paymentColumns(p model.Payment) map[string]any {
	return map[string]any{
		"payment_status":            p.Status,
		"payment_method":            p.Method,
		"payment_provider":          p.Provider,
		"payment_provider_order_id": p.ProviderOrderId,
		"payment_gateway_ref":       p.GatewayRef,
		"payment_transaction_id":    p.TransactionId,
		"payment_params":            p.Params,
		"payment_refund_ref":        p.RefundRef,
		"payment_paid_at":           p.PaidAt,
	}
}

// Transition moves the order from one status to the next if and only if it is
// still in from. Any concurrent change surfaces as CONFLICT.
func (s *Store) Transition(ctx context.Context, id string, from, to model.OrderStatus, patch model.OrderPatch, actor string) (*model.Order, error) {
	if !model.CanTransition(from, to) {
		return nil, apperror.Conflict("transition %s -> %s is not allowed", from, to)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.First(&order, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(constants.ORDER_NOT_FOUND)
			}
			return err
		}
		if order.Status != from {
			return apperror.Conflict("order %s is %s, expected %s", order.OrderNumber, order.Status, from)
		}

		payment := order.Payment
		if patch.Payment != nil {
			payment = *patch.Payment
		}
		if order.Channel == model.ChannelOnline {
			if to == model.OrderConfirmed {
				return apperror.Conflict("online orders cannot be confirmed without payment")
			}
			if (to == model.OrderPaid || to == model.OrderCompleted) && payment.Status != model.PaymentPaid {
				return apperror.Conflict("online order %s is not paid", order.OrderNumber)
			}
		}

		now := s.now()
		updates := paymentColumns(payment)
		updates["status"] = to
		updates["status_reason"] = patch.Reason
		updates["version"] = order.Version + 1
		updates["updated_at"] = now
		switch to {
		case model.OrderCompleted:
			updates["completed_at"] = now
		case model.OrderCancelled:
			updates["cancelled_at"] = now
		}

		res := tx.Model(&model.Order{}).
			Where("id = ? AND status = ? AND version = ?", id, from, order.Version).
			UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("order %s changed concurrently", order.OrderNumber)
		}

		if err := tx.Preload("Items", orderItems).First(&order, "id = ?", id).Error; err != nil {
			return err
		}
		return record(tx, &order, from, actor, patch.Reason, model.EventOrderUpdated)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// UpdatePayment rewrites the payment of an order that is still in status at,
// without moving it. Used for refunds settled after a cancellation.
func (s *Store) UpdatePayment(ctx context.Context, id string, at model.OrderStatus, payment model.Payment, reason, actor string) (*model.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.First(&order, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound(constants.ORDER_NOT_FOUND)
			}
			return err
		}
		if order.Status != at {
			return apperror.Conflict("order %s is %s, expected %s", order.OrderNumber, order.Status, at)
		}

		updates := paymentColumns(payment)
		updates["version"] = order.Version + 1
		updates["updated_at"] = s.now()
		res := tx.Model(&model.Order{}).
			Where("id = ? AND status = ? AND version = ?", id, at, order.Version).
			UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("order %s changed concurrently", order.OrderNumber)
		}

		if err := tx.Preload("Items", orderItems).First(&order, "id = ?", id).Error; err != nil {
			return err
		}
		return record(tx, &order, at, actor, reason, model.EventOrderUpdated)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func (s *Store) Get(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Items", orderItems).
		Preload("Audits", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound(constants.ORDER_NOT_FOUND)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, theaterID uint, key string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Items", orderItems).
		Where("theater_id = ? AND idempotency_key = ?", theaterID, key).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound(constants.ORDER_NOT_FOUND)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByProviderOrderID looks up the order a gateway callback refers to.
func (s *Store) FindByProviderOrderID(ctx context.Context, providerOrderID string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Items", orderItems).
		Where("payment_provider_order_id = ?", providerOrderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound(constants.ORDER_NOT_FOUND)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) FindByTransactionID(ctx context.Context, transactionID string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Items", orderItems).
		Where("payment_transaction_id = ?", transactionID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound(constants.ORDER_NOT_FOUND)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) Revision(ctx context.Context, theaterID uint) (int64, error) {
	var rev model.TheaterRevision
	err := s.db.WithContext(ctx).Where("theater_id = ?", theaterID).First(&rev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return rev.Revision, err
}

// Unpublished returns outbox rows not yet relayed, oldest first.
func (s *Store) Unpublished(ctx context.Context, limit int) ([]model.OrderEvent, error) {
	var events []model.OrderEvent
	err := s.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (s *Store) MarkPublished(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&model.OrderEvent{}).
		Where("id IN ?", ids).
		Update("published_at", s.now()).Error
}
