package model

import "time"

// StockLevel counters satisfy
// available + open reservations + committed - restocked = initial.
type StockLevel struct {
	TheaterId uint      `gorm:"primaryKey;autoIncrement:false" json:"theaterId"`
	ProductId uint      `gorm:"primaryKey;autoIncrement:false" json:"productId"`
	Initial   int64     `gorm:"not null;default:0" json:"initial"`
	Available int64     `gorm:"not null;default:0" json:"available"`
	Committed int64     `gorm:"not null;default:0" json:"committed"`
	Restocked int64     `gorm:"not null;default:0" json:"restocked"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ReservationStatus string

const (
	ReservationOpen      ReservationStatus = "OPEN"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationReturned  ReservationStatus = "RETURNED"
)

type Reservation struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	OrderId   string            `gorm:"size:36;index;not null" json:"orderId"`
	TheaterId uint              `gorm:"index;not null" json:"theaterId"`
	ProductId uint              `gorm:"not null" json:"productId"`
	Quantity  int64             `gorm:"not null" json:"quantity"`
	Status    ReservationStatus `gorm:"size:12;index;not null" json:"status"`
	// nil once pinned; pinned reservations never expire
	ExpiresAt *time.Time `gorm:"index" json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type ReserveLine struct {
	ProductId uint
	Quantity  int64
}
