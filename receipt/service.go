package receipt

import (
	"context"

	"cinema_pos/events"
	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
)

type Theaters interface {
	Theater(ctx context.Context, id uint) (*model.Theater, error)
}

// Service renders bills and, once an order is paid, archives and mails them.
// Mailer and archive are optional.
type Service struct {
	renderer *Renderer
	theaters Theaters
	mailer   *Mailer
	archive  *S3Archive
}

func NewService(renderer *Renderer, theaters Theaters, mailer *Mailer, archive *S3Archive) *Service {
	return &Service{renderer: renderer, theaters: theaters, mailer: mailer, archive: archive}
}

func (s *Service) Renderer() *Renderer { return s.renderer }

func (s *Service) Bill(ctx context.Context, order *model.Order) (Bill, error) {
	theater, err := s.theaters.Theater(ctx, order.TheaterId)
	if err != nil {
		return Bill{}, err
	}
	return BillFromOrder(order, theater.Name), nil
}

func (s *Service) HTML(ctx context.Context, order *model.Order) ([]byte, error) {
	b, err := s.Bill(ctx, order)
	if err != nil {
		return nil, err
	}
	return s.renderer.Bill(b)
}

// ArchivedURL returns a presigned link for a paid order's archived receipt,
// or "" when archiving is off or the order was never paid.
func (s *Service) ArchivedURL(ctx context.Context, order *model.Order) (string, error) {
	if s.archive == nil || order.Payment.PaidAt == nil {
		return "", nil
	}
	b, err := s.Bill(ctx, order)
	if err != nil {
		return "", err
	}
	return s.archive.URL(ctx, Key(b))
}

func (s *Service) Deliver(ctx context.Context, order *model.Order) error {
	if s.archive == nil && (s.mailer == nil || order.CustomerEmail == "") {
		return nil
	}
	b, err := s.Bill(ctx, order)
	if err != nil {
		return err
	}
	html, err := s.renderer.Bill(b)
	if err != nil {
		return err
	}
	if s.archive != nil {
		if _, err := s.archive.Put(ctx, b, html); err != nil {
			return err
		}
	}
	if s.mailer != nil && order.CustomerEmail != "" {
		if err := s.mailer.Send(order.CustomerEmail, b, html); err != nil {
			return err
		}
		log.Infow("receipt mailed", "orderNumber", b.OrderNumber)
	}
	return nil
}

// Handler is the mail consumer group's handler; it acts on PAID events only.
func (s *Service) Handler() events.Handler {
	return func(ctx context.Context, msg events.Message) error {
		if msg.Status != model.OrderPaid || msg.Order == nil {
			return nil
		}
		return s.Deliver(ctx, msg.Order)
	}
}
