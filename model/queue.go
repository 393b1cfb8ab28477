package model

import "time"

type QueueStatus string

// An entry is removed once the server acks it, so synced is only ever
// reported, never stored.
const (
	QueueQueued  QueueStatus = "queued"
	QueueSyncing QueueStatus = "syncing"
	QueueSynced  QueueStatus = "synced"
	QueueFailed  QueueStatus = "failed"
)

// QueueEntry is an order accepted by a POS terminal while offline, kept in
// the terminal's local database until the server has it.
type QueueEntry struct {
	Seq            uint        `gorm:"primaryKey" json:"seq"`
	QueueId        string      `gorm:"uniqueIndex;size:36;not null" json:"queueId"`
	TheaterId      uint        `gorm:"index;not null" json:"theaterId"`
	IdempotencyKey string      `gorm:"uniqueIndex;size:100;not null" json:"idempotencyKey"`
	Payload        string      `gorm:"type:text;not null" json:"-"`
	Status         QueueStatus `gorm:"size:10;index;not null" json:"status"`
	Attempts       int         `gorm:"not null;default:0" json:"attempts"`
	LastError      string      `json:"lastError,omitempty"`
	NextAttemptAt  *time.Time  `json:"nextAttemptAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type DrainReport struct {
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}
