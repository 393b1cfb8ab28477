package model

type GSTType string

const (
	GSTInclude GSTType = "INCLUDE"
	GSTExclude GSTType = "EXCLUDE"
)

// Product prices are minor units (paise).
type Product struct {
	DTO
	TheaterId          uint    `gorm:"index;not null" json:"theaterId"`
	Name               string  `gorm:"not null" json:"name"`
	ImagePublicId      string  `json:"imagePublicId,omitempty"`
	ImageUrl           string  `json:"imageUrl"`
	BasePrice          int64   `gorm:"not null" json:"basePrice"`
	OfferPrice         int64   `gorm:"not null;default:0" json:"offerPrice"`
	TaxRate            float64 `gorm:"not null;default:0" json:"taxRate"`
	GSTType            GSTType `gorm:"size:10;not null;default:'EXCLUDE'" json:"gstType"`
	DiscountPercentage float64 `gorm:"not null;default:0" json:"discountPercentage"`
	Category           string  `gorm:"index" json:"category"`
	Active             bool    `gorm:"not null;default:true" json:"isActive"`
}

// EffectivePrice is the offer price for combos/offers, else the base price.
func (p Product) EffectivePrice() int64 {
	if p.OfferPrice > 0 {
		return p.OfferPrice
	}
	return p.BasePrice
}

type ProductView struct {
	Product
	Stock int64 `json:"stock"`
}

type CreateProductInput struct {
	TheaterId          uint    `json:"theaterId" validate:"required"`
	Name               string  `json:"name" validate:"required"`
	ImagePublicId      string  `json:"imagePublicId"`
	ImageUrl           string  `json:"imageUrl" validate:"omitempty,url"`
	BasePrice          int64   `json:"basePrice" validate:"required,gt=0"`
	OfferPrice         int64   `json:"offerPrice" validate:"gte=0"`
	TaxRate            float64 `json:"taxRate" validate:"gte=0,lte=100"`
	GSTType            GSTType `json:"gstType" validate:"required,oneof=INCLUDE EXCLUDE"`
	DiscountPercentage float64 `json:"discountPercentage" validate:"gte=0,lte=100"`
	Category           string  `json:"category" validate:"required"`
	InitialStock       int64   `json:"initialStock" validate:"gte=0"`
}

type EditProductInput struct {
	Name               *string  `json:"name"`
	ImagePublicId      *string  `json:"imagePublicId"`
	ImageUrl           *string  `json:"imageUrl" validate:"omitempty,url"`
	BasePrice          *int64   `json:"basePrice" validate:"omitempty,gt=0"`
	OfferPrice         *int64   `json:"offerPrice" validate:"omitempty,gte=0"`
	TaxRate            *float64 `json:"taxRate" validate:"omitempty,gte=0,lte=100"`
	GSTType            *GSTType `json:"gstType" validate:"omitempty,oneof=INCLUDE EXCLUDE"`
	DiscountPercentage *float64 `json:"discountPercentage" validate:"omitempty,gte=0,lte=100"`
	Category           *string  `json:"category"`
	Active             *bool    `json:"isActive"`
}

type RestockInput struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}
