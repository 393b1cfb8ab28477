package handler

import (
	"encoding/base64"
	"encoding/json"

	"cinema_pos/apperror"
	"cinema_pos/gateway"
	"cinema_pos/helper"
	"cinema_pos/model"
	"cinema_pos/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

func CreatePayment(c *fiber.Ctx) error {
	input := c.Locals("inputCreatePayment").(model.CreatePaymentInput)
	order, err := deps.Orders.Get(c.UserContext(), input.OrderId)
	if err != nil {
		return utils.DomainError(c, err)
	}
	if err := authorizedTheater(c, order.TheaterId); err != nil {
		return utils.DomainError(c, err)
	}
	view, err := deps.Coordinator.CreatePayment(c.UserContext(), input, helper.Actor(c))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, view)
}

// VerifyPayment is called by the client with what the provider SDK handed
// back (Razorpay checkout, Paytm JS).
func VerifyPayment(c *fiber.Ctx) error {
	input := c.Locals("inputVerifyPayment").(model.VerifyPaymentInput)
	order, err := deps.Orders.Get(c.UserContext(), input.OrderId)
	if err != nil {
		return utils.DomainError(c, err)
	}
	if err := authorizedTheater(c, order.TheaterId); err != nil {
		return utils.DomainError(c, err)
	}
	res, err := deps.Coordinator.Verify(c.UserContext(), gateway.Callback{
		OrderID:         input.OrderId,
		ProviderOrderID: input.ProviderOrderId,
		ProviderTxnID:   input.ProviderTxnId,
		Signature:       input.Signature,
		TransactionID:   input.TransactionId,
		Raw:             input.Raw,
	}, helper.Actor(c))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, res)
}

// PaytmCallback receives Paytm's form post. The checksum is what
// authenticates it, so the route is public.
func PaytmCallback(c *fiber.Ctx) error {
	raw := map[string]string{}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		raw[string(k)] = string(v)
	})
	if raw["ORDERID"] == "" {
		return utils.DomainError(c, apperror.Validation("ORDERID is required"))
	}
	res, err := deps.Coordinator.Verify(c.UserContext(), gateway.Callback{
		TransactionID: raw["ORDERID"],
		ProviderTxnID: raw["TXNID"],
		Signature:     raw["CHECKSUMHASH"],
		Raw:           raw,
	}, "gateway:paytm")
	if err != nil {
		log.Warnw("paytm callback rejected", "orderId", raw["ORDERID"], "error", err)
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, res)
}

// PhonePeCallback receives {"response": base64} signed in X-VERIFY.
func PhonePeCallback(c *fiber.Ctx) error {
	var body struct {
		Response string `json:"response"`
	}
	if err := c.BodyParser(&body); err != nil || body.Response == "" {
		return utils.DomainError(c, apperror.Validation("response is required"))
	}
	// The transaction id is only used to find the order; the signature is
	// checked by the provider before anything changes.
	var peek struct {
		Data struct {
			MerchantTransactionID string `json:"merchantTransactionId"`
			TransactionID         string `json:"transactionId"`
		} `json:"data"`
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Response)
	if err != nil || json.Unmarshal(decoded, &peek) != nil || peek.Data.MerchantTransactionID == "" {
		return utils.DomainError(c, apperror.Validation("malformed callback payload"))
	}

	res, err := deps.Coordinator.Verify(c.UserContext(), gateway.Callback{
		TransactionID: peek.Data.MerchantTransactionID,
		ProviderTxnID: peek.Data.TransactionID,
		Signature:     c.Get("X-VERIFY"),
		Raw:           map[string]string{"response": body.Response},
	}, "gateway:phonepe")
	if err != nil {
		log.Warnw("phonepe callback rejected", "transactionId", peek.Data.MerchantTransactionID, "error", err)
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, res)
}
