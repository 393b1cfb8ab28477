package gateway

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"cinema_pos/model"

	"github.com/shopspring/decimal"
)

const paytmIV = "@@@@&&&&####$$$$"

type Paytm struct {
	client      *http.Client
	baseURL     string
	mid         string
	merchantKey string
	website     string
	callbackURL string
}

func NewPaytm(client *http.Client, baseURL, mid, merchantKey, website, callbackURL string) *Paytm {
	if website == "" {
		website = "DEFAULT"
	}
	return &Paytm{
		client:      client,
		baseURL:     strings.TrimRight(baseURL, "/"),
		mid:         mid,
		merchantKey: merchantKey,
		website:     website,
		callbackURL: callbackURL,
	}
}

func (p *Paytm) Name() string { return model.ProviderPaytm }

type paytmInitiateResponse struct {
	Body struct {
		ResultInfo struct {
			ResultStatus string `json:"resultStatus"`
			ResultCode   string `json:"resultCode"`
			ResultMsg    string `json:"resultMsg"`
		} `json:"resultInfo"`
		TxnToken string `json:"txnToken"`
	} `json:"body"`
}

func rupees(paise int64) string {
	return decimal.New(paise, -2).StringFixed(2)
}

func (p *Paytm) CreatePaymentOrder(ctx context.Context, req CreateRequest) (*PaymentOrder, error) {
	if p.mid == "" || p.merchantKey == "" {
		return nil, ErrNotConfigured
	}
	body := map[string]any{
		"requestType": "Payment",
		"mid":         p.mid,
		"websiteName": p.website,
		"orderId":     req.TransactionID,
		"callbackUrl": p.callbackURL,
		"txnAmount": map[string]string{
			"value":    rupees(req.Amount),
			"currency": req.Currency,
		},
		"userInfo": map[string]string{
			"custId": "CUST_" + req.OrderID,
			"mobile": req.CustomerPhone,
			"email":  req.CustomerEmail,
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	signature, err := PaytmSign(string(raw), p.merchantKey)
	if err != nil {
		return nil, err
	}

	q := url.Values{"mid": {p.mid}, "orderId": {req.TransactionID}}
	var out paytmInitiateResponse
	err = doJSON(ctx, p.client, request{
		provider: p.Name(),
		method:   http.MethodPost,
		url:      p.baseURL + "/theia/api/v1/initiateTransaction?" + q.Encode(),
		body: map[string]any{
			"body": json.RawMessage(raw),
			"head": map[string]string{"signature": signature},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Body.ResultInfo.ResultStatus != "S" {
		return nil, fmt.Errorf("paytm initiate failed: %s %s", out.Body.ResultInfo.ResultCode, out.Body.ResultInfo.ResultMsg)
	}

	return &PaymentOrder{
		ProviderOrderID: req.TransactionID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		TransactionID:   req.TransactionID,
		ProviderParams: map[string]any{
			"mid":      p.mid,
			"orderId":  req.TransactionID,
			"txnToken": out.Body.TxnToken,
			"amount":   rupees(req.Amount),
			"host":     p.baseURL,
		},
	}, nil
}

// VerifyCallback checks the CHECKSUMHASH of the posted form and the STATUS.
func (p *Paytm) VerifyCallback(_ context.Context, cb Callback) (Verification, error) {
	v := Verification{ProviderOrderID: cb.Raw["ORDERID"], ProviderTxnID: cb.Raw["TXNID"]}
	if v.ProviderOrderID == "" {
		v.ProviderOrderID = cb.ProviderOrderID
	}
	checksum := cb.Raw["CHECKSUMHASH"]
	if checksum == "" {
		checksum = cb.Signature
	}
	if checksum == "" {
		v.Reason = "missing checksum"
		return v, nil
	}

	params := make(map[string]string, len(cb.Raw))
	for k, val := range cb.Raw {
		if k != "CHECKSUMHASH" {
			params[k] = val
		}
	}
	ok, err := PaytmVerify(paytmParamString(params), p.merchantKey, checksum)
	if err != nil || !ok {
		v.Reason = "checksum mismatch"
		return v, nil
	}
	v.Authentic = true
	if status := cb.Raw["STATUS"]; status != "TXN_SUCCESS" {
		v.Reason = "payment status " + status
		return v, nil
	}
	if amt := cb.Raw["TXNAMOUNT"]; amt != "" {
		if d, err := decimal.NewFromString(amt); err == nil {
			v.Amount = d.Shift(2).IntPart()
		}
	}
	v.OK = true
	return v, nil
}

func (p *Paytm) Refund(context.Context, string, int64) (RefundResult, error) {
	return RefundResult{}, ErrRefundUnsupported
}

func paytmParamString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		if v := params[k]; v != "null" {
			values[i] = v
		}
	}
	return strings.Join(values, "|")
}

// PaytmSign builds a checksum: AES-CBC(sha256hex(data|salt)+salt) in base64.
func PaytmSign(data, key string) (string, error) {
	salt := make([]byte, 3)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return paytmSignWithSalt(data, key, base64.StdEncoding.EncodeToString(salt))
}

func paytmSignWithSalt(data, key, salt string) (string, error) {
	sum := sha256.Sum256([]byte(data + "|" + salt))
	return paytmEncrypt(hex.EncodeToString(sum[:])+salt, key)
}

func PaytmVerify(data, key, checksum string) (bool, error) {
	plain, err := paytmDecrypt(checksum, key)
	if err != nil {
		return false, err
	}
	if len(plain) < 4 {
		return false, nil
	}
	salt := plain[len(plain)-4:]
	expected, err := paytmSignWithSalt(data, key, salt)
	if err != nil {
		return false, err
	}
	return expected == checksum, nil
}

func paytmEncrypt(plain, key string) (string, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", err
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	buf := append([]byte(plain), bytes.Repeat([]byte{byte(pad)}, pad)...)
	cipher.NewCBCEncrypter(block, []byte(paytmIV)).CryptBlocks(buf, buf)
	return base64.StdEncoding.EncodeToString(buf), nil
}

func paytmDecrypt(encoded, key string) (string, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(buf) == 0 || len(buf)%aes.BlockSize != 0 {
		return "", errors.New("paytm checksum has invalid length")
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", err
	}
	cipher.NewCBCDecrypter(block, []byte(paytmIV)).CryptBlocks(buf, buf)
	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(buf) {
		return "", errors.New("paytm checksum has invalid padding")
	}
	return string(buf[:len(buf)-pad]), nil
}
