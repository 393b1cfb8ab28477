package model

import "time"

type TokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type TokenClaim struct {
	AccountId uint   `json:"accountId"`
	Username  string `json:"username"`
	TheaterId *uint  `json:"theaterId"`
	Role      string `json:"role"`
	QRName    string `json:"qrName,omitempty"`
}

type DTO struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Pagination struct {
	Limit *int `json:"limit" query:"limit"`
	Page  *int `json:"page" query:"page"`
}

type PageInfo struct {
	Current    int   `json:"current"`
	TotalPages int   `json:"totalPages"`
	TotalItems int64 `json:"totalItems"`
}
