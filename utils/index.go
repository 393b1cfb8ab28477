package utils

import (
	"errors"
	"strings"

	"cinema_pos/apperror"
	"cinema_pos/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	var errMsg interface{}
	if err != nil {
		errMsg = err.Error()
	} else {
		errMsg = nil
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"error":   errMsg,
	})
}

func SuccessResponse(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "success",
		"data":   data,
	})
}

var kindStatus = map[apperror.Kind]int{
	apperror.KindValidation:              fiber.StatusBadRequest,
	apperror.KindAuthentication:          fiber.StatusUnauthorized,
	apperror.KindForbidden:               fiber.StatusForbidden,
	apperror.KindNotFound:                fiber.StatusNotFound,
	apperror.KindInsufficientStock:       fiber.StatusConflict,
	apperror.KindStalePricing:            fiber.StatusConflict,
	apperror.KindPaymentMethodNotAllowed: fiber.StatusUnprocessableEntity,
	apperror.KindGatewayUnavailable:      fiber.StatusBadGateway,
	apperror.KindGatewayVerifyFailed:     fiber.StatusPaymentRequired,
	apperror.KindConflict:                fiber.StatusConflict,
	apperror.KindTimeout:                 fiber.StatusGatewayTimeout,
	apperror.KindInternal:                fiber.StatusInternalServerError,
}

func StatusOf(kind apperror.Kind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return fiber.StatusInternalServerError
}

// DomainError writes err as {message, error, kind} plus the kind's extra
// fields. Internal causes are logged and never sent to the client.
func DomainError(c *fiber.Ctx, err error) error {
	e := apperror.As(err)
	status := StatusOf(e.Kind)
	body := fiber.Map{
		"message": e.Message,
		"error":   e.Message,
		"kind":    e.Kind,
	}
	switch e.Kind {
	case apperror.KindInternal:
		log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		body["message"] = constants.ERROR_INTERNAL_ERROR
		body["error"] = constants.ERROR_INTERNAL_ERROR
	case apperror.KindInsufficientStock:
		body["productId"] = e.ProductID
		body["available"] = e.Available
	}
	if e.Details != nil {
		body["details"] = e.Details
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler is the app-wide fiber error handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return ErrorResponse(c, fe.Code, fe.Message, err)
	}
	return DomainError(c, err)
}

// SplitCSV splits a comma-separated query value, dropping blanks.
func SplitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Ptr[T any](v T) *T {
	return &v
}
