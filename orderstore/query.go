package orderstore

import (
	"context"
	"strings"
	"time"

	"cinema_pos/apperror"
	"cinema_pos/model"

	"gorm.io/gorm"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

var revenueStatuses = []model.OrderStatus{model.OrderPaid, model.OrderCompleted}

// ParseDay accepts YYYY-MM-DD or RFC 3339 and returns the calendar day.
func ParseDay(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.Format("2006-01-02"), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return "", apperror.Validation("invalid date %q", v)
	}
	return t.Format("2006-01-02"), nil
}

func (s *Store) filtered(ctx context.Context, f model.FilterOrder) (*gorm.DB, error) {
	q := s.db.WithContext(ctx).Model(&model.Order{}).Where("theater_id = ?", f.TheaterId)

	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(order_number) LIKE ? OR LOWER(customer_name) LIKE ?)", like, like)
	}
	if f.Status != "" {
		q = q.Where("status = ?", strings.ToUpper(f.Status))
	}
	if f.PaymentMode != "" {
		q = q.Where("payment_method = ?", model.NormalizeMethod(f.PaymentMode))
	}
	if len(f.Sources) > 0 {
		q = q.Where("source IN ?", f.Sources)
	}

	start, err := ParseDay(f.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDay(f.EndDate)
	if err != nil {
		return nil, err
	}
	if start != "" {
		q = q.Where("business_day >= ?", start)
	}
	if end != "" {
		q = q.Where("business_day <= ?", end)
	}
	return q, nil
}

type summaryRow struct {
	TotalOrders          int64
	ConfirmedOrders      int64
	CompletedOrders      int64
	CancelledOrderAmount int64
	TotalRevenue         int64
}

// List pages through orders matching the filter, newest first, and
// summarizes the whole filtered set.
func (s *Store) List(ctx context.Context, f model.FilterOrder) (*model.OrderListResponse, error) {
	limit, page := defaultLimit, 1
	if f.Limit != nil && *f.Limit > 0 {
		limit = min(*f.Limit, maxLimit)
	}
	if f.Page != nil && *f.Page > 0 {
		page = *f.Page
	}

	q, err := s.filtered(ctx, f)
	if err != nil {
		return nil, err
	}

	var row summaryRow
	if err := q.Session(&gorm.Session{}).Select(
		"COUNT(*) AS total_orders, "+
			"COALESCE(SUM(CASE WHEN status IN ? THEN 1 ELSE 0 END), 0) AS confirmed_orders, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed_orders, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN pricing_total ELSE 0 END), 0) AS cancelled_order_amount, "+
			"COALESCE(SUM(CASE WHEN status IN ? THEN pricing_total ELSE 0 END), 0) AS total_revenue",
		[]model.OrderStatus{model.OrderConfirmed, model.OrderPaid},
		model.OrderCompleted,
		model.OrderCancelled,
		revenueStatuses,
	).Scan(&row).Error; err != nil {
		return nil, err
	}

	var orders []model.Order
	if err := q.Session(&gorm.Session{}).
		Preload("Items", orderItems).
		Order("created_at DESC").Order("id").
		Limit(limit).Offset((page - 1) * limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}

	totalPages := int((row.TotalOrders + int64(limit) - 1) / int64(limit))
	return &model.OrderListResponse{
		Items: orders,
		Pagination: model.PageInfo{
			Current:    page,
			TotalPages: totalPages,
			TotalItems: row.TotalOrders,
		},
		Summary: model.OrderSummary{
			TotalOrders:          row.TotalOrders,
			ConfirmedOrders:      row.ConfirmedOrders,
			CompletedOrders:      row.CompletedOrders,
			CancelledOrderAmount: row.CancelledOrderAmount,
			TotalRevenue:         row.TotalRevenue,
		},
	}, nil
}

// Stale lists orders of a theater stuck in one of the statuses since before cutoff.
func (s *Store) Stale(ctx context.Context, theaterID uint, statuses []model.OrderStatus, cutoff time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("theater_id = ? AND status IN ? AND updated_at < ?", theaterID, statuses, cutoff).
		Order("created_at").
		Find(&orders).Error
	return orders, err
}
