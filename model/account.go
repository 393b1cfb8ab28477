package model

type Account struct {
	DTO
	Username  string `gorm:"uniqueIndex;not null" validate:"required,min=3,max=50" json:"username"`
	Password  string `gorm:"not null" json:"-"`
	Active    bool   `gorm:"not null;default:true" json:"active"`
	Role      string `gorm:"not null" json:"role"`
	TheaterId *uint  `gorm:"index" json:"theaterId"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=50"`
}

// GuestLoginInput is sent by the QR landing page; the slug identifies the theater.
type GuestLoginInput struct {
	TheaterSlug string `json:"theaterSlug" validate:"required"`
	QRName      string `json:"qrName" validate:"omitempty,max=64"`
}
