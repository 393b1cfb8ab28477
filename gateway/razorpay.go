package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"cinema_pos/model"
)

type Razorpay struct {
	client    *http.Client
	baseURL   string
	keyID     string
	keySecret string
}

func NewRazorpay(client *http.Client, baseURL, keyID, keySecret string) *Razorpay {
	return &Razorpay{client: client, baseURL: strings.TrimRight(baseURL, "/"), keyID: keyID, keySecret: keySecret}
}

func (r *Razorpay) Name() string { return model.ProviderRazorpay }

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

func (r *Razorpay) CreatePaymentOrder(ctx context.Context, req CreateRequest) (*PaymentOrder, error) {
	if r.keyID == "" || r.keySecret == "" {
		return nil, ErrNotConfigured
	}
	var out razorpayOrder
	err := doJSON(ctx, r.client, request{
		provider: r.Name(),
		method:   http.MethodPost,
		url:      r.baseURL + "/v1/orders",
		basic:    [2]string{r.keyID, r.keySecret},
		body: map[string]any{
			"amount":   req.Amount,
			"currency": req.Currency,
			"receipt":  req.TransactionID,
			"notes": map[string]string{
				"orderId":     req.OrderID,
				"orderNumber": req.OrderNumber,
			},
		},
	}, &out)
	if err != nil {
		return nil, err
	}

	return &PaymentOrder{
		ProviderOrderID: out.ID,
		Amount:          out.Amount,
		Currency:        out.Currency,
		TransactionID:   req.TransactionID,
		ProviderParams: map[string]any{
			"key":         r.keyID,
			"order_id":    out.ID,
			"amount":      out.Amount,
			"currency":    out.Currency,
			"description": req.OrderNumber,
			"method":      string(req.Method),
			"prefill": map[string]string{
				"name":    req.CustomerName,
				"email":   req.CustomerEmail,
				"contact": req.CustomerPhone,
			},
		},
	}, nil
}

// Sign returns hex(HMAC-SHA256(secret, orderID|paymentID)).
func (r *Razorpay) Sign(providerOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(r.keySecret))
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *Razorpay) VerifyCallback(_ context.Context, cb Callback) (Verification, error) {
	v := Verification{ProviderTxnID: cb.ProviderTxnID, ProviderOrderID: cb.ProviderOrderID}
	if cb.ProviderOrderID == "" || cb.ProviderTxnID == "" || cb.Signature == "" {
		v.Reason = "missing payment fields"
		return v, nil
	}
	expected := r.Sign(cb.ProviderOrderID, cb.ProviderTxnID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(cb.Signature))) {
		v.Reason = "signature mismatch"
		return v, nil
	}
	v.Authentic = true
	v.OK = true
	return v, nil
}

func (r *Razorpay) Refund(ctx context.Context, providerTxnID string, amount int64) (RefundResult, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := doJSON(ctx, r.client, request{
		provider: r.Name(),
		method:   http.MethodPost,
		url:      r.baseURL + "/v1/payments/" + providerTxnID + "/refund",
		basic:    [2]string{r.keyID, r.keySecret},
		body:     map[string]any{"amount": amount},
	}, &out)
	if err != nil {
		return RefundResult{}, err
	}
	return RefundResult{OK: true, RefundRef: out.ID}, nil
}
