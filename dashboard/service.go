package dashboard

import (
	"context"
	"time"

	"cinema_pos/apperror"
	"cinema_pos/model"
	"cinema_pos/orderstore"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	recentLimit = 10
	topLimit    = 5
	defaultDays = 7
)

var revenueStatuses = []model.OrderStatus{model.OrderPaid, model.OrderCompleted}

type Revisions interface {
	Revision(ctx context.Context, theaterID uint) (int64, error)
}

// Service aggregates dashboard figures straight from the order tables.
type Service struct {
	db        *gorm.DB
	revisions Revisions
	now       func() time.Time
}

func NewService(db *gorm.DB, revisions Revisions) *Service {
	return &Service{db: db, revisions: revisions, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Range resolves the requested days, defaulting to the last week of the
// theater's business days.
func (s *Service) Range(theater model.Theater, start, end string) (string, string, error) {
	today := orderstore.BusinessDay(s.now(), theater.Timezone)
	var err error
	if end, err = orderstore.ParseDay(end); err != nil {
		return "", "", err
	}
	if start, err = orderstore.ParseDay(start); err != nil {
		return "", "", err
	}
	if end == "" {
		end = today
	}
	if start == "" {
		t, _ := time.Parse("2006-01-02", end)
		start = t.AddDate(0, 0, -(defaultDays - 1)).Format("2006-01-02")
	}
	if start > end {
		return "", "", apperror.Validation("startDate %s is after endDate %s", start, end)
	}
	return start, end, nil
}

func (s *Service) orders(ctx context.Context, theaterID uint, start, end string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&model.Order{}).
		Where("theater_id = ? AND business_day BETWEEN ? AND ?", theaterID, start, end)
}

// Compute builds the dashboard for the inclusive day range. The revision is
// read first so a cached copy is never newer than its stamp.
func (s *Service) Compute(ctx context.Context, theater model.Theater, start, end string) (*model.Dashboard, error) {
	rev, err := s.revisions.Revision(ctx, theater.ID)
	if err != nil {
		return nil, err
	}
	today := orderstore.BusinessDay(s.now(), theater.Timezone)

	d := &model.Dashboard{
		TheaterId: theater.ID,
		StartDate: start,
		EndDate:   end,
		Revision:  rev,
		Channels: map[string]model.ChannelBreakdown{
			"pos":    {ByMethod: map[string]int64{}},
			"kiosk":  {ByMethod: map[string]int64{}},
			"online": {ByMethod: map[string]int64{}},
		},
		SalesOverTime:      []model.SalesPoint{},
		CategoryEarnings:   []model.CategoryEarning{},
		RecentTransactions: []model.RecentTransaction{},
		TopProducts:        []model.TopProduct{},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&model.Order{}).
			Select("COALESCE(SUM(pricing_total), 0)").
			Where("theater_id = ? AND business_day = ? AND status IN ?", theater.ID, today, revenueStatuses).
			Scan(&d.Stats.TodayRevenue).Error
	})
	g.Go(func() error {
		return s.orders(gctx, theater.ID, start, end).Count(&d.Stats.TotalOrders).Error
	})
	g.Go(func() error {
		var counts struct {
			Total  int64
			Active int64
		}
		err := s.db.WithContext(gctx).Model(&model.Product{}).
			Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0) AS active").
			Where("theater_id = ?", theater.ID).
			Scan(&counts).Error
		d.Stats.TotalProducts, d.Stats.ActiveProducts = counts.Total, counts.Active
		return err
	})

	var channelRows []struct {
		Source        model.Source
		PaymentMethod string
		Amount        int64
		Orders        int64
	}
	g.Go(func() error {
		return s.orders(gctx, theater.ID, start, end).
			Select("source, payment_method, COALESCE(SUM(pricing_total), 0) AS amount, COUNT(*) AS orders").
			Where("status IN ?", revenueStatuses).
			Group("source, payment_method").
			Scan(&channelRows).Error
	})
	g.Go(func() error {
		return s.orders(gctx, theater.ID, start, end).
			Select("business_day AS day, COALESCE(SUM(pricing_total), 0) AS amount, COUNT(*) AS orders").
			Where("status IN ?", revenueStatuses).
			Group("business_day").
			Order("business_day").
			Scan(&d.SalesOverTime).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Table("order_items AS i").
			Select("i.category AS category, COALESCE(SUM(i.line_total), 0) AS amount, COALESCE(SUM(i.quantity), 0) AS quantity").
			Joins("JOIN orders o ON o.id = i.order_id").
			Where("o.theater_id = ? AND o.business_day BETWEEN ? AND ? AND o.status IN ?", theater.ID, start, end, revenueStatuses).
			Group("i.category").
			Order("amount DESC").
			Scan(&d.CategoryEarnings).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Table("order_items AS i").
			Select("i.product_id AS product_id, MAX(i.name) AS name, COALESCE(SUM(i.quantity), 0) AS quantity, COALESCE(SUM(i.line_total), 0) AS amount").
			Joins("JOIN orders o ON o.id = i.order_id").
			Where("o.theater_id = ? AND o.business_day BETWEEN ? AND ? AND o.status IN ?", theater.ID, start, end, revenueStatuses).
			Group("i.product_id").
			Order("quantity DESC").Order("i.product_id").
			Limit(topLimit).
			Scan(&d.TopProducts).Error
	})

	var recent []model.Order
	g.Go(func() error {
		return s.orders(gctx, theater.ID, start, end).
			Order("created_at DESC").Order("id DESC").
			Limit(recentLimit).
			Find(&recent).Error
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, row := range channelRows {
		bucket := row.Source.Bucket()
		if bucket == "" {
			continue
		}
		ch := d.Channels[bucket]
		ch.Amount += row.Amount
		ch.Orders += row.Orders
		ch.ByMethod[row.PaymentMethod] += row.Amount
		d.Channels[bucket] = ch
	}
	for _, o := range recent {
		d.RecentTransactions = append(d.RecentTransactions, model.RecentTransaction{
			OrderId:     o.ID,
			OrderNumber: o.OrderNumber,
			Source:      o.Source,
			Method:      o.Payment.Method,
			Status:      o.Status,
			Total:       o.Pricing.Total,
			CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return d, nil
}
