package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"cinema_pos/model"
)

const phonePePayPath = "/pg/v1/pay"

type PhonePe struct {
	client      *http.Client
	baseURL     string
	merchantID  string
	saltKey     string
	saltIndex   string
	callbackURL string
}

func NewPhonePe(client *http.Client, baseURL, merchantID, saltKey, saltIndex, callbackURL string) *PhonePe {
	if saltIndex == "" {
		saltIndex = "1"
	}
	return &PhonePe{
		client:      client,
		baseURL:     strings.TrimRight(baseURL, "/"),
		merchantID:  merchantID,
		saltKey:     saltKey,
		saltIndex:   saltIndex,
		callbackURL: callbackURL,
	}
}

func (p *PhonePe) Name() string { return model.ProviderPhonePe }

// XVerify returns sha256hex(payload+suffix+salt)###index.
func (p *PhonePe) XVerify(payload, suffix string) string {
	sum := sha256.Sum256([]byte(payload + suffix + p.saltKey))
	return hex.EncodeToString(sum[:]) + "###" + p.saltIndex
}

type phonePePayResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL    string `json:"url"`
				Method string `json:"method"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

func (p *PhonePe) CreatePaymentOrder(ctx context.Context, req CreateRequest) (*PaymentOrder, error) {
	if p.merchantID == "" || p.saltKey == "" {
		return nil, ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]any{
		"merchantId":            p.merchantID,
		"merchantTransactionId": req.TransactionID,
		"merchantUserId":        "MUID" + strings.ReplaceAll(req.OrderNumber, "-", ""),
		"amount":                req.Amount,
		"redirectUrl":           p.callbackURL,
		"redirectMode":          "POST",
		"callbackUrl":           p.callbackURL,
		"mobileNumber":          req.CustomerPhone,
		"paymentInstrument":     map[string]string{"type": "PAY_PAGE"},
	})
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	var out phonePePayResponse
	err = doJSON(ctx, p.client, request{
		provider: p.Name(),
		method:   http.MethodPost,
		url:      p.baseURL + phonePePayPath,
		headers:  map[string]string{"X-VERIFY": p.XVerify(encoded, phonePePayPath)},
		body:     map[string]string{"request": encoded},
	}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &StatusError{Provider: p.Name(), Status: http.StatusOK, Body: out.Code + " " + out.Message}
	}

	return &PaymentOrder{
		ProviderOrderID: req.TransactionID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		TransactionID:   req.TransactionID,
		ProviderParams: map[string]any{
			"merchantTransactionId": req.TransactionID,
			"redirectUrl":           out.Data.InstrumentResponse.RedirectInfo.URL,
			"redirectMethod":        out.Data.InstrumentResponse.RedirectInfo.Method,
		},
	}, nil
}

// VerifyCallback checks the server-to-server callback: a base64 "response"
// signed with X-VERIFY = sha256(response+salt)###index.
func (p *PhonePe) VerifyCallback(_ context.Context, cb Callback) (Verification, error) {
	v := Verification{ProviderOrderID: cb.ProviderOrderID, ProviderTxnID: cb.ProviderTxnID}
	response := cb.Raw["response"]
	if response == "" || cb.Signature == "" {
		v.Reason = "missing callback payload"
		return v, nil
	}
	expected := p.XVerify(response, "")
	if subtle.ConstantTimeCompare([]byte(expected), []byte(cb.Signature)) != 1 {
		v.Reason = "signature mismatch"
		return v, nil
	}
	v.Authentic = true

	raw, err := base64.StdEncoding.DecodeString(response)
	if err != nil {
		v.Reason = "malformed callback payload"
		return v, nil
	}
	var decoded phonePePayResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		v.Reason = "malformed callback payload"
		return v, nil
	}
	v.ProviderOrderID = decoded.Data.MerchantTransactionID
	v.ProviderTxnID = decoded.Data.TransactionID
	v.Amount = decoded.Data.Amount
	if !decoded.Success || decoded.Code != "PAYMENT_SUCCESS" {
		v.Reason = "payment status " + decoded.Code
		return v, nil
	}
	v.OK = true
	return v, nil
}

func (p *PhonePe) Refund(context.Context, string, int64) (RefundResult, error) {
	return RefundResult{}, ErrRefundUnsupported
}
