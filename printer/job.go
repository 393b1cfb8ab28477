package printer

import (
	"context"
	"encoding/json"

	"cinema_pos/events"
	"cinema_pos/model"
	"cinema_pos/receipt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindGSTBill        Kind = "gst_bill"
	KindCategoryDocket Kind = "category_docket"
)

// Job is the message sent to the loopback bridge.
type Job struct {
	ID                string       `json:"jobId"`
	Kind              Kind         `json:"kind"`
	ReceiptTemplateID string       `json:"receiptTemplateId"`
	TheaterId         uint         `json:"theaterId"`
	OrderId           string       `json:"orderId"`
	Category          string       `json:"category,omitempty"`
	Bill              receipt.Bill `json:"bill"`
}

// DedupeKey identifies a job across retries. Dockets of different
// categories of one order are distinct jobs.
func (j Job) DedupeKey() string {
	if j.Kind == KindCategoryDocket {
		return j.OrderId + "|" + string(j.Kind) + "|" + j.Category
	}
	return j.OrderId + "|" + string(j.Kind)
}

type Ack struct {
	OK        bool   `json:"ok"`
	JobID     string `json:"jobId"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PlanJobs returns the aggregated GST bill, followed by one docket per
// category when the order spans more than one.
func PlanJobs(b receipt.Bill) []Job {
	jobs := []Job{{
		ID:                uuid.NewString(),
		Kind:              KindGSTBill,
		ReceiptTemplateID: receipt.TemplateGSTBill,
		TheaterId:         b.TheaterId,
		OrderId:           b.OrderId,
		Bill:              b,
	}}
	categories := b.Categories()
	if len(categories) < 2 {
		return jobs
	}
	for _, c := range categories {
		jobs = append(jobs, Job{
			ID:                uuid.NewString(),
			Kind:              KindCategoryDocket,
			ReceiptTemplateID: receipt.TemplateCategoryDocket,
			TheaterId:         b.TheaterId,
			OrderId:           b.OrderId,
			Category:          c,
			Bill:              b.ForCategory(c),
		})
	}
	return jobs
}

// Batch is pushed to theater print agents on the print topic.
type Batch struct {
	Topic   string `json:"topic"`
	OrderId string `json:"orderId"`
	Jobs    []Job  `json:"jobs"`
}

type Bills interface {
	Bill(ctx context.Context, order *model.Order) (receipt.Bill, error)
}

// FanOut is the print consumer group's handler: PAID orders become print
// batches on the theater's print topic.
func FanOut(hub *events.Hub, bills Bills) events.Handler {
	return func(ctx context.Context, msg events.Message) error {
		if msg.Status != model.OrderPaid || msg.Order == nil {
			return nil
		}
		b, err := bills.Bill(ctx, msg.Order)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(Batch{Topic: events.TopicPrint, OrderId: msg.OrderId, Jobs: PlanJobs(b)})
		if err != nil {
			return err
		}
		hub.Broadcast(msg.TheaterId, events.TopicPrint, payload)
		return nil
	}
}
