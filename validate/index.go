package validate

import (
	"errors"
	"strconv"

	"cinema_pos/apperror"
	"cinema_pos/constants"
	"cinema_pos/model"
	"cinema_pos/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// Struct validates tags on any input outside the middlewares.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	return nil
}

// body parses and validates the request body into T and stores it under key.
func body[T any](key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var input T
		if err := c.BodyParser(&input); err != nil {
			return utils.DomainError(c, apperror.Validation("invalid input: %s", err.Error()))
		}
		if err := Struct(input); err != nil {
			return utils.DomainError(c, err)
		}
		c.Locals(key, input)
		return c.Next()
	}
}

func GetById(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := c.Params(key)
		valueKey, err := strconv.ParseUint(params, 10, 64)
		if err != nil || valueKey == 0 {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, errors.New("params invalid"))
		}

		c.Locals("inputId", uint(valueKey))
		return c.Next()
	}
}

func Login() fiber.Handler { return body[model.LoginInput]("inputLogin") }
func GuestLogin() fiber.Handler { return body[model.GuestLoginInput]("inputGuestLogin") }
func CreateTheater() fiber.Handler { return body[model.CreateTheaterInput]("inputCreateTheater") }
func CreateProduct() fiber.Handler { return body[model.CreateProductInput]("inputCreateProduct") }
func EditProduct() fiber.Handler { return body[model.EditProductInput]("inputEditProduct") }
func Restock() fiber.Handler { return body[model.RestockInput]("inputRestock") }
func GatewayConfig() fiber.Handler {
	return body[model.GatewayConfigInput]("inputGatewayConfig")
}
