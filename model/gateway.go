package model

import "strings"

const (
	ProviderRazorpay = "razorpay"
	ProviderPaytm    = "paytm"
	ProviderPhonePe  = "phonepe"
	ProviderNone     = "none"
)

// GatewayConfig is stored per theater and channel.
type GatewayConfig struct {
	DTO
	TheaterId       uint    `gorm:"uniqueIndex:idx_gateway_theater_channel;not null" json:"theaterId"`
	Channel         Channel `gorm:"uniqueIndex:idx_gateway_theater_channel;size:10;not null" json:"channel"`
	Provider        string  `gorm:"size:20;not null;default:'none'" json:"provider"`
	Enabled         bool    `gorm:"not null;default:false" json:"enabled"`
	AcceptedMethods string  `gorm:"not null;default:'cash'" json:"acceptedMethods"`

	// razorpay
	KeyId     string `json:"keyId,omitempty"`
	KeySecret string `json:"-"`
	// paytm
	MerchantId  string `json:"merchantId,omitempty"`
	MerchantKey string `json:"-"`
	Website     string `json:"website,omitempty"`
	// phonepe
	SaltKey   string `json:"-"`
	SaltIndex string `json:"saltIndex,omitempty"`
}

func (g GatewayConfig) Methods() []PaymentMethod {
	var out []PaymentMethod
	for _, m := range strings.Split(g.AcceptedMethods, ",") {
		m = strings.TrimSpace(strings.ToLower(m))
		if m != "" {
			out = append(out, PaymentMethod(m))
		}
	}
	return out
}

type GatewayConfigInput struct {
	Provider        string          `json:"provider" validate:"required,oneof=razorpay paytm phonepe none"`
	Enabled         bool            `json:"enabled"`
	AcceptedMethods []PaymentMethod `json:"acceptedMethods" validate:"dive,oneof=cash card upi netbanking wallet"`
	KeyId           string          `json:"keyId"`
	KeySecret       string          `json:"keySecret"`
	MerchantId      string          `json:"merchantId"`
	MerchantKey     string          `json:"merchantKey"`
	Website         string          `json:"website"`
	SaltKey         string          `json:"saltKey"`
	SaltIndex       string          `json:"saltIndex"`
}

type PaymentMethodsView struct {
	TheaterId uint            `json:"theaterId"`
	Source    Source          `json:"source"`
	Channel   Channel         `json:"channel"`
	Provider  string          `json:"provider"`
	Methods   []PaymentMethod `json:"methods"`
}
