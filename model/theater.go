package model

type Theater struct {
	DTO
	Name     string `gorm:"not null" json:"name"`
	Slug     string `gorm:"uniqueIndex;size:120" json:"slug"`
	Code     string `gorm:"not null;size:6" json:"code"`
	Timezone string `gorm:"not null;default:'Asia/Kolkata'" json:"timezone"`
	Active   bool   `gorm:"not null;default:true" json:"isActive"`
}

type CreateTheaterInput struct {
	Name     string `json:"name" validate:"required"`
	Code     string `json:"code" validate:"required,alphanum,min=3,max=6"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}
