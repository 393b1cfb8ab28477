package offlinequeue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cinema_pos/apperror"
	"cinema_pos/database"
	"cinema_pos/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the terminal-local durable queue. Entries are drained in Seq order.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return NewStore(db)
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&model.QueueEntry{}); err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Enqueue persists an offline order before the terminal acknowledges it.
// Only cash is accepted offline.
func (s *Store) Enqueue(ctx context.Context, input model.AcceptOrderInput) (*model.QueueEntry, error) {
	if input.TheaterId == 0 {
		return nil, apperror.Validation("theaterId is required")
	}
	if len(input.Items) == 0 {
		return nil, apperror.Validation("order has no items")
	}
	if model.NormalizeMethod(input.PaymentMethod) != model.MethodCash {
		return nil, apperror.PaymentMethodNotAllowed(input.PaymentMethod, string(model.ChannelKiosk))
	}
	input.PaymentMethod = string(model.MethodCash)
	input.Source = model.SourceOfflinePOS
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = uuid.NewString()
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	entry := &model.QueueEntry{
		QueueId:        uuid.NewString(),
		TheaterId:      input.TheaterId,
		IdempotencyKey: input.IdempotencyKey,
		Payload:        string(payload),
		Status:         model.QueueQueued,
		CreatedAt:      s.now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict("idempotency key %s is already queued", input.IdempotencyKey)
		}
		return nil, err
	}
	return entry, nil
}

func (s *Store) List(ctx context.Context, status model.QueueStatus) ([]model.QueueEntry, error) {
	q := s.db.WithContext(ctx).Order("seq")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var entries []model.QueueEntry
	return entries, q.Find(&entries).Error
}

// Pending lists entries still to be sent. A syncing entry left behind by a
// crash mid-request is sent again; the idempotency key makes that safe.
func (s *Store) Pending(ctx context.Context) ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status IN ?", []model.QueueStatus{model.QueueQueued, model.QueueSyncing}).
		Order("seq").
		Find(&entries).Error
	return entries, err
}

func (s *Store) MarkSyncing(ctx context.Context, seq uint) error {
	return s.db.WithContext(ctx).Model(&model.QueueEntry{}).Where("seq = ?", seq).
		Update("status", model.QueueSyncing).Error
}

// Ack removes an entry the server has acknowledged.
func (s *Store) Ack(ctx context.Context, seq uint) error {
	return s.db.WithContext(ctx).Where("seq = ?", seq).Delete(&model.QueueEntry{}).Error
}

func (s *Store) MarkFailed(ctx context.Context, seq uint, reason string) error {
	return s.db.WithContext(ctx).Model(&model.QueueEntry{}).Where("seq = ?", seq).Updates(map[string]any{
		"status":          model.QueueFailed,
		"attempts":        gorm.Expr("attempts + 1"),
		"last_error":      reason,
		"next_attempt_at": nil,
	}).Error
}

func (s *Store) ScheduleRetry(ctx context.Context, seq uint, next time.Time, reason string) error {
	return s.db.WithContext(ctx).Model(&model.QueueEntry{}).Where("seq = ?", seq).Updates(map[string]any{
		"status":          model.QueueQueued,
		"attempts":        gorm.Expr("attempts + 1"),
		"last_error":      reason,
		"next_attempt_at": next,
	}).Error
}

// Retry puts a failed entry back at its original place in the queue.
func (s *Store) Retry(ctx context.Context, queueID string) error {
	res := s.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("queue_id = ? AND status = ?", queueID, model.QueueFailed).
		Updates(map[string]any{"status": model.QueueQueued, "next_attempt_at": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("no failed entry " + queueID)
	}
	return nil
}
