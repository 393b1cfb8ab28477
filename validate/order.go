package validate

import (
	"strings"

	"cinema_pos/apperror"
	"cinema_pos/model"
	"cinema_pos/utils"

	"github.com/gofiber/fiber/v2"
)

// AcceptOrder takes the idempotency key from the body or, failing that,
// from the Idempotency-Key header.
func AcceptOrder() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var input model.AcceptOrderInput
		if err := c.BodyParser(&input); err != nil {
			return utils.DomainError(c, apperror.Validation("invalid input: %s", err.Error()))
		}
		if input.IdempotencyKey == "" {
			input.IdempotencyKey = strings.TrimSpace(c.Get("Idempotency-Key"))
		}
		input.Source = model.Source(strings.ToLower(strings.TrimSpace(string(input.Source))))
		if err := Struct(input); err != nil {
			return utils.DomainError(c, err)
		}
		c.Locals("inputAcceptOrder", input)
		return c.Next()
	}
}

func CreatePayment() fiber.Handler { return body[model.CreatePaymentInput]("inputCreatePayment") }
func VerifyPayment() fiber.Handler { return body[model.VerifyPaymentInput]("inputVerifyPayment") }
func CancelOrder() fiber.Handler { return body[model.CancelOrderInput]("inputCancelOrder") }
func SettleOrder() fiber.Handler { return body[model.SettleOrderInput]("inputSettleOrder") }

// ListOrders parses the order-list query; source is comma-separated.
func ListOrders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var filter model.FilterOrder
		if err := c.QueryParser(&filter); err != nil {
			return utils.DomainError(c, apperror.Validation("invalid query: %s", err.Error()))
		}
		for _, s := range utils.SplitCSV(c.Query("source")) {
			src := model.Source(strings.ToLower(s))
			if !src.Valid() {
				return utils.DomainError(c, apperror.Validation("unknown source %q", s))
			}
			filter.Sources = append(filter.Sources, src)
		}
		c.Locals("inputListOrders", filter)
		return c.Next()
	}
}
