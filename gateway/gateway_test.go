package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cinema_pos/config"
	"cinema_pos/database"
	"cinema_pos/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayCreateAndVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 21000, body["amount"])
		assert.Equal(t, "INR", body["currency"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "order_abc", "amount": 21000, "currency": "INR", "status": "created"})
	}))
	defer srv.Close()

	rp := NewRazorpay(srv.Client(), srv.URL, "rzp_key", "rzp_secret")
	po, err := rp.CreatePaymentOrder(context.Background(), CreateRequest{
		OrderID:       "o-1",
		OrderNumber:   "GAL-20260302-0001",
		TransactionID: "txn1",
		Amount:        21000,
		Currency:      "INR",
		Method:        model.MethodUPI,
	})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", po.ProviderOrderID)
	assert.Equal(t, "rzp_key", po.ProviderParams["key"])

	sig := rp.Sign("order_abc", "pay_1")
	v, err := rp.VerifyCallback(context.Background(), Callback{ProviderOrderID: "order_abc", ProviderTxnID: "pay_1", Signature: sig})
	require.NoError(t, err)
	assert.True(t, v.OK)

	v, err = rp.VerifyCallback(context.Background(), Callback{ProviderOrderID: "order_abc", ProviderTxnID: "pay_2", Signature: sig})
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.False(t, v.Authentic)
	assert.Equal(t, "signature mismatch", v.Reason)
}

func TestRazorpayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"down"}`))
	}))
	defer srv.Close()

	rp := NewRazorpay(srv.Client(), srv.URL, "k", "s")
	_, err := rp.CreatePaymentOrder(context.Background(), CreateRequest{Amount: 100, Currency: "INR"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
}

func TestPaytmChecksumRoundTrip(t *testing.T) {
	key := "abcdefghijklmnop"
	params := map[string]string{
		"ORDERID":   "txn1",
		"TXNID":     "2026030211",
		"STATUS":    "TXN_SUCCESS",
		"TXNAMOUNT": "210.00",
		"MID":       "MID123",
	}
	sum, err := PaytmSign(paytmParamString(params), key)
	require.NoError(t, err)

	ok, err := PaytmVerify(paytmParamString(params), key, sum)
	require.NoError(t, err)
	assert.True(t, ok)

	pt := NewPaytm(http.DefaultClient, "http://paytm.invalid", "MID123", key, "", "")
	raw := map[string]string{"CHECKSUMHASH": sum}
	for k, v := range params {
		raw[k] = v
	}
	v, err := pt.VerifyCallback(context.Background(), Callback{Raw: raw})
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.Equal(t, "2026030211", v.ProviderTxnID)
	assert.Equal(t, int64(21000), v.Amount)

	raw["TXNAMOUNT"] = "1.00"
	v, err = pt.VerifyCallback(context.Background(), Callback{Raw: raw})
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.False(t, v.Authentic)

	// a properly signed failure is the provider's word
	params["STATUS"] = "TXN_FAILURE"
	failSum, err := PaytmSign(paytmParamString(params), key)
	require.NoError(t, err)
	failed := map[string]string{"CHECKSUMHASH": failSum}
	for k, v := range params {
		failed[k] = v
	}
	v, err = pt.VerifyCallback(context.Background(), Callback{Raw: failed})
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.True(t, v.Authentic)
	assert.Equal(t, "payment status TXN_FAILURE", v.Reason)

	_, err = pt.Refund(context.Background(), "x", 1)
	assert.ErrorIs(t, err, ErrRefundUnsupported)
}

func TestPhonePeCallback(t *testing.T) {
	pp := NewPhonePe(http.DefaultClient, "http://phonepe.invalid", "M1", "salt-key", "1", "")
	payload, _ := json.Marshal(map[string]any{
		"success": true,
		"code":    "PAYMENT_SUCCESS",
		"data":    map[string]any{"merchantTransactionId": "txn1", "transactionId": "T123", "amount": 21000},
	})
	response := base64.StdEncoding.EncodeToString(payload)
	sum := sha256.Sum256([]byte(response + "salt-key"))
	sig := hex.EncodeToString(sum[:]) + "###1"

	v, err := pp.VerifyCallback(context.Background(), Callback{Signature: sig, Raw: map[string]string{"response": response}})
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.Equal(t, "txn1", v.ProviderOrderID)
	assert.Equal(t, "T123", v.ProviderTxnID)

	v, err = pp.VerifyCallback(context.Background(), Callback{Signature: "bad###1", Raw: map[string]string{"response": response}})
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.False(t, v.Authentic)

	declined, _ := json.Marshal(map[string]any{
		"success": false,
		"code":    "PAYMENT_ERROR",
		"data":    map[string]any{"merchantTransactionId": "txn1", "transactionId": "T124", "amount": 21000},
	})
	response = base64.StdEncoding.EncodeToString(declined)
	sum = sha256.Sum256([]byte(response + "salt-key"))
	v, err = pp.VerifyCallback(context.Background(), Callback{Signature: hex.EncodeToString(sum[:]) + "###1", Raw: map[string]string{"response": response}})
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.True(t, v.Authentic)
}

func TestPhonePeCreateSendsXVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sum := sha256.Sum256([]byte(body["request"] + "/pg/v1/pay" + "salt-key"))
		assert.Equal(t, hex.EncodeToString(sum[:])+"###1", r.Header.Get("X-VERIFY"))
		_, _ = w.Write([]byte(`{"success":true,"code":"PAYMENT_INITIATED","data":{"instrumentResponse":{"redirectInfo":{"url":"https://pay.example/x","method":"GET"}}}}`))
	}))
	defer srv.Close()

	pp := NewPhonePe(srv.Client(), srv.URL, "M1", "salt-key", "1", "http://cb")
	po, err := pp.CreatePaymentOrder(context.Background(), CreateRequest{OrderNumber: "GAL-20260302-0001", TransactionID: "txn1", Amount: 21000, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/x", po.ProviderParams["redirectUrl"])
}

func TestBindMethods(t *testing.T) {
	f := NewFactory(config.Gateway{}, nil)

	b, err := f.Bind(1, model.ChannelKiosk, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.PaymentMethod{model.MethodCash}, b.Methods)
	assert.Equal(t, model.ProviderNone, b.ProviderName())

	b, err = f.Bind(1, model.ChannelKiosk, &model.GatewayConfig{Enabled: true, Provider: model.ProviderNone, AcceptedMethods: "cash,upi"})
	require.NoError(t, err)
	assert.True(t, b.Allows(model.MethodCash))
	assert.False(t, b.Allows(model.MethodUPI))

	b, err = f.Bind(1, model.ChannelOnline, &model.GatewayConfig{Enabled: true, Provider: model.ProviderRazorpay, AcceptedMethods: "upi,card"})
	require.NoError(t, err)
	assert.True(t, b.Allows(model.MethodUPI))
	assert.False(t, b.Allows(model.MethodCash))
	assert.Equal(t, model.ProviderRazorpay, b.ProviderName())

	_, err = f.Bind(1, model.ChannelOnline, &model.GatewayConfig{Enabled: true, Provider: "stripe"})
	assert.Error(t, err)
}

func TestResolverCachesAndInvalidates(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	r := NewConfigResolver(db, rdb, 0, NewFactory(config.Gateway{}, nil))
	ctx := context.Background()

	b, err := r.Resolve(ctx, 7, model.ChannelOnline)
	require.NoError(t, err)
	assert.Equal(t, []model.PaymentMethod{model.MethodCash}, b.Methods)
	assert.True(t, mr.Exists("pos:gwcfg:7:online"))

	saved, err := r.Save(ctx, 7, model.ChannelOnline, model.GatewayConfigInput{
		Provider:        model.ProviderRazorpay,
		Enabled:         true,
		AcceptedMethods: []model.PaymentMethod{model.MethodUPI},
		KeyId:           "rzp_key",
		KeySecret:       "rzp_secret",
	})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.False(t, mr.Exists("pos:gwcfg:7:online"))

	cfg, err := r.Config(ctx, 7, model.ChannelOnline)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "rzp_secret", cfg.KeySecret)

	// served from cache with the secret intact
	cfg, err = r.Config(ctx, 7, model.ChannelOnline)
	require.NoError(t, err)
	assert.Equal(t, "rzp_secret", cfg.KeySecret)

	// blank secret keeps the stored one
	_, err = r.Save(ctx, 7, model.ChannelOnline, model.GatewayConfigInput{
		Provider:        model.ProviderRazorpay,
		Enabled:         true,
		AcceptedMethods: []model.PaymentMethod{model.MethodUPI, model.MethodCard},
		KeyId:           "rzp_key",
	})
	require.NoError(t, err)
	b, err = r.Resolve(ctx, 7, model.ChannelOnline)
	require.NoError(t, err)
	assert.Equal(t, "rzp_secret", b.Config.KeySecret)
	assert.True(t, b.Allows(model.MethodCard))
}
