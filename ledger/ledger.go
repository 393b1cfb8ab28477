// Package ledger owns stock counters. It is the only writer of stock_levels.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cinema_pos/apperror"
	"cinema_pos/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultTTL = 15 * time.Minute

type Ledger struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func New(db *gorm.DB, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (l *Ledger) TTL() time.Duration { return l.ttl }

func (l *Ledger) Now() time.Time { return l.now() }

// WithClock replaces the time source; used by tests and the sweeper.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// merge folds duplicate products and orders lines by product id so that
// concurrent reservations touch rows in the same order.
func merge(lines []model.ReserveLine) []model.ReserveLine {
	qty := map[uint]int64{}
	for _, ln := range lines {
		qty[ln.ProductId] += ln.Quantity
	}
	out := make([]model.ReserveLine, 0, len(qty))
	for id, q := range qty {
		out = append(out, model.ReserveLine{ProductId: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductId < out[j].ProductId })
	return out
}

// Reserve decrements available stock for every line or for none of them.
// A second call for the same order is a no-op.
func (l *Ledger) Reserve(ctx context.Context, theaterID uint, orderID string, lines []model.ReserveLine) error {
	if len(lines) == 0 {
		return apperror.Validation("nothing to reserve")
	}
	merged := merge(lines)

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.Reservation{}).Where("order_id = ?", orderID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		expires := l.now().Add(l.ttl)
		for _, ln := range merged {
			if ln.Quantity <= 0 {
				return apperror.Validation("quantity must be at least 1 for product %d", ln.ProductId)
			}
			res := tx.Model(&model.StockLevel{}).
				Where("theater_id = ? AND product_id = ? AND available >= ?", theaterID, ln.ProductId, ln.Quantity).
				UpdateColumn("available", gorm.Expr("available - ?", ln.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				available, err := l.available(tx, theaterID, ln.ProductId)
				if err != nil {
					return err
				}
				return apperror.InsufficientStock(ln.ProductId, available)
			}

			r := model.Reservation{
				OrderId:   orderID,
				TheaterId: theaterID,
				ProductId: ln.ProductId,
				Quantity:  ln.Quantity,
				Status:    model.ReservationOpen,
				ExpiresAt: &expires,
			}
			if err := tx.Create(&r).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Ledger) available(tx *gorm.DB, theaterID, productID uint) (int64, error) {
	var lvl model.StockLevel
	err := tx.Where("theater_id = ? AND product_id = ?", theaterID, productID).First(&lvl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return lvl.Available, err
}

// settle moves every reservation of the order in status from to status to,
// applying adjust to the product counters for each row it actually moved.
func (l *Ledger) settle(ctx context.Context, orderID string, from, to model.ReservationStatus, adjust map[string]string) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []model.Reservation
		if err := tx.Where("order_id = ? AND status = ?", orderID, from).Order("product_id").Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			res := tx.Model(&model.Reservation{}).
				Where("id = ? AND status = ?", r.ID, from).
				Updates(map[string]any{"status": to, "expires_at": nil})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}

			updates := map[string]any{}
			for col, op := range adjust {
				updates[col] = gorm.Expr(fmt.Sprintf("%s %s ?", col, op), r.Quantity)
			}
			if err := tx.Model(&model.StockLevel{}).
				Where("theater_id = ? AND product_id = ?", r.TheaterId, r.ProductId).
				UpdateColumns(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Commit makes the reservation a permanent decrement. Idempotent.
func (l *Ledger) Commit(ctx context.Context, orderID string) error {
	return l.settle(ctx, orderID, model.ReservationOpen, model.ReservationCommitted, map[string]string{"committed": "+"})
}

// Release gives reserved stock back. Idempotent.
func (l *Ledger) Release(ctx context.Context, orderID string) error {
	return l.settle(ctx, orderID, model.ReservationOpen, model.ReservationReleased, map[string]string{"available": "+"})
}

// Return reverses a commit, used when a paid order is cancelled.
func (l *Ledger) Return(ctx context.Context, orderID string) error {
	return l.settle(ctx, orderID, model.ReservationCommitted, model.ReservationReturned, map[string]string{
		"available": "+",
		"committed": "-",
	})
}

// Pin clears the expiry of open reservations so the sweeper leaves them alone.
func (l *Ledger) Pin(ctx context.Context, orderID string) error {
	return l.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("order_id = ? AND status = ?", orderID, model.ReservationOpen).
		Update("expires_at", nil).Error
}

// Init creates the stock row for a product; an existing row is left untouched.
func (l *Ledger) Init(ctx context.Context, theaterID, productID uint, initial int64) error {
	lvl := model.StockLevel{
		TheaterId: theaterID,
		ProductId: productID,
		Initial:   initial,
		Available: initial,
	}
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&lvl).Error
}

// Restock adds stock. Restocks are tracked separately from the initial count.
func (l *Ledger) Restock(ctx context.Context, theaterID, productID uint, quantity int64) (model.StockLevel, error) {
	if quantity <= 0 {
		return model.StockLevel{}, apperror.Validation("restock quantity must be positive")
	}
	var lvl model.StockLevel
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.StockLevel{TheaterId: theaterID, ProductId: productID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.StockLevel{}).
			Where("theater_id = ? AND product_id = ?", theaterID, productID).
			UpdateColumns(map[string]any{
				"available": gorm.Expr("available + ?", quantity),
				"restocked": gorm.Expr("restocked + ?", quantity),
			}).Error; err != nil {
			return err
		}
		return tx.Where("theater_id = ? AND product_id = ?", theaterID, productID).First(&lvl).Error
	})
	return lvl, err
}

func (l *Ledger) Level(ctx context.Context, theaterID, productID uint) (model.StockLevel, error) {
	var lvl model.StockLevel
	err := l.db.WithContext(ctx).Where("theater_id = ? AND product_id = ?", theaterID, productID).First(&lvl).Error
	return lvl, err
}

// Available returns available stock per product; unknown products map to 0.
func (l *Ledger) Available(ctx context.Context, theaterID uint, productIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(productIDs))
	for _, id := range productIDs {
		out[id] = 0
	}
	var lvls []model.StockLevel
	q := l.db.WithContext(ctx).Where("theater_id = ?", theaterID)
	if len(productIDs) > 0 {
		q = q.Where("product_id IN ?", productIDs)
	}
	if err := q.Find(&lvls).Error; err != nil {
		return nil, err
	}
	for _, lvl := range lvls {
		out[lvl.ProductId] = lvl.Available
	}
	return out, nil
}

func (l *Ledger) Reservations(ctx context.Context, orderID string) ([]model.Reservation, error) {
	var rows []model.Reservation
	err := l.db.WithContext(ctx).Where("order_id = ?", orderID).Order("product_id").Find(&rows).Error
	return rows, err
}

// HasStatus reports whether the order has at least one reservation in status.
func (l *Ledger) HasStatus(ctx context.Context, orderID string, status model.ReservationStatus) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("order_id = ? AND status = ?", orderID, status).
		Count(&n).Error
	return n > 0, err
}

// Expired lists orders of the theater with an open reservation past its expiry.
func (l *Ledger) Expired(ctx context.Context, theaterID uint, now time.Time) ([]string, error) {
	var ids []string
	err := l.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("theater_id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at < ?", theaterID, model.ReservationOpen, now).
		Distinct().
		Order("order_id").
		Pluck("order_id", &ids).Error
	return ids, err
}

// TheatersWithOpen lists theaters that currently hold open reservations.
func (l *Ledger) TheatersWithOpen(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := l.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("status = ?", model.ReservationOpen).
		Distinct().
		Order("theater_id").
		Pluck("theater_id", &ids).Error
	return ids, err
}

// OpenQuantity sums open reservations for a product.
func (l *Ledger) OpenQuantity(ctx context.Context, theaterID, productID uint) (int64, error) {
	var sum int64
	err := l.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("theater_id = ? AND product_id = ? AND status = ?", theaterID, productID, model.ReservationOpen).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sum).Error
	return sum, err
}
