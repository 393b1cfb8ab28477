// Package gateway adapts the supported payment providers to one interface.
// Amounts are always minor units (paise).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"cinema_pos/config"
	"cinema_pos/model"
)

var (
	ErrRefundUnsupported = errors.New("refund not supported by provider")
	ErrNotConfigured     = errors.New("payment gateway is not configured")
)

type CreateRequest struct {
	OrderID       string
	OrderNumber   string
	TransactionID string
	Amount        int64
	Currency      string
	Method        model.PaymentMethod
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

type PaymentOrder struct {
	ProviderOrderID string
	Amount          int64
	Currency        string
	ProviderParams  map[string]any
	TransactionID   string
}

// Callback is whatever the client or the provider posted back after payment.
type Callback struct {
	OrderID         string
	ProviderOrderID string
	ProviderTxnID   string
	Signature       string
	TransactionID   string
	Raw             map[string]string
}

type Verification struct {
	OK bool
	// Authentic is set once the signature or checksum checked out, so a
	// failure reported by the provider can be told apart from a forged post.
	Authentic bool

	ProviderTxnID   string
	ProviderOrderID string
	// Amount is set by providers that report it; zero means unknown.
	Amount int64
	Reason string
}

type RefundResult struct {
	OK        bool
	RefundRef string
}

type Provider interface {
	Name() string
	CreatePaymentOrder(ctx context.Context, req CreateRequest) (*PaymentOrder, error)
	VerifyCallback(ctx context.Context, cb Callback) (Verification, error)
	Refund(ctx context.Context, providerTxnID string, amount int64) (RefundResult, error)
}

// Binding is the resolved payment setup of one theater channel.
type Binding struct {
	TheaterID uint
	Channel   model.Channel
	Config    *model.GatewayConfig
	Provider  Provider
	Methods   []model.PaymentMethod
}

func (b Binding) Allows(m model.PaymentMethod) bool {
	return slices.Contains(b.Methods, m)
}

func (b Binding) ProviderName() string {
	if b.Provider == nil {
		return model.ProviderNone
	}
	return b.Provider.Name()
}

// Factory builds providers from stored configs.
type Factory struct {
	cfg    config.Gateway
	client *http.Client
}

func NewFactory(cfg config.Gateway, client *http.Client) *Factory {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Factory{cfg: cfg, client: client}
}

func (f *Factory) Provider(cfg model.GatewayConfig) (Provider, error) {
	switch cfg.Provider {
	case model.ProviderRazorpay:
		return NewRazorpay(f.client, f.cfg.RazorpayBaseURL, cfg.KeyId, cfg.KeySecret), nil
	case model.ProviderPaytm:
		return NewPaytm(f.client, f.cfg.PaytmBaseURL, cfg.MerchantId, cfg.MerchantKey, cfg.Website,
			f.cfg.CallbackBaseURL+"/api/v1/payments/paytm/callback"), nil
	case model.ProviderPhonePe:
		return NewPhonePe(f.client, f.cfg.PhonePeBaseURL, cfg.MerchantId, cfg.SaltKey, cfg.SaltIndex,
			f.cfg.CallbackBaseURL+"/api/v1/payments/phonepe/callback"), nil
	case model.ProviderNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}

// Bind derives the accepted methods for a stored config. A missing or
// disabled config accepts cash only; gateway methods need a provider.
func (f *Factory) Bind(theaterID uint, channel model.Channel, cfg *model.GatewayConfig) (Binding, error) {
	b := Binding{TheaterID: theaterID, Channel: channel, Config: cfg}
	if cfg == nil || !cfg.Enabled {
		b.Methods = []model.PaymentMethod{model.MethodCash}
		return b, nil
	}

	provider, err := f.Provider(*cfg)
	if err != nil {
		return b, err
	}
	b.Provider = provider
	for _, m := range cfg.Methods() {
		if !m.Valid() || slices.Contains(b.Methods, m) {
			continue
		}
		if m.IsGateway() && provider == nil {
			continue
		}
		b.Methods = append(b.Methods, m)
	}
	return b, nil
}
