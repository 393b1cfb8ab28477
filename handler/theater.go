package handler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cinema_pos/apperror"
	"cinema_pos/constants"
	"cinema_pos/model"
	"cinema_pos/utils"

	"github.com/gofiber/fiber/v2"
)

func CreateTheater(c *fiber.Ctx) error {
	input := c.Locals("inputCreateTheater").(model.CreateTheaterInput)
	theater, err := deps.Catalog.CreateTheater(c.UserContext(), input)
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, theater)
}

func GetTheaterById(c *fiber.Ctx) error {
	theaterID, err := theaterParam(c, "theaterId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, err)
	}
	theater, err := deps.Catalog.Theater(c.UserContext(), theaterID)
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, theater)
}

// GetQRCode renders the PNG printed on a seat or table; scanning it opens
// the theater's ordering page with the seat name preset.
func GetQRCode(c *fiber.Ctx) error {
	theaterID, err := theaterParam(c, "theaterId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, err)
	}
	name := strings.TrimSpace(c.Query("name"))
	if name == "" || len(name) > 64 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.ERROR_INPUT, errors.New("name is required (max 64 chars)"))
	}
	size := c.QueryInt("size", 512)
	if size < 128 || size > 2048 {
		size = 512
	}
	theater, err := deps.Catalog.Theater(c.UserContext(), theaterID)
	if err != nil {
		return utils.DomainError(c, err)
	}

	link := fmt.Sprintf("%s/order/%s?qr=%s", strings.TrimRight(deps.Settings.PublicAppURL, "/"), theater.Slug, url.QueryEscape(name))
	png, err := utils.GenerateQRCode(link, size)
	if err != nil {
		return utils.DomainError(c, apperror.Internal(err))
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s-%s.png"`, theater.Slug, url.PathEscape(name)))
	return c.Send(png)
}

// GetPaymentMethods tells the ordering UI which methods the channel behind
// ?source accepts.
func GetPaymentMethods(c *fiber.Ctx) error {
	theaterID, err := theaterParam(c, "theaterId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, err)
	}
	source := model.Source(strings.ToLower(c.Query("source", string(model.SourcePOS))))
	if !source.Valid() {
		return utils.DomainError(c, apperror.Validation("unknown source %q", source))
	}

	binding, err := deps.Gateways.Resolve(c.UserContext(), theaterID, source.Channel())
	if err != nil {
		return utils.DomainError(c, apperror.GatewayUnavailable(err))
	}
	methods := binding.Methods
	if source == model.SourceOfflinePOS {
		methods = []model.PaymentMethod{model.MethodCash}
	}
	return utils.SuccessResponse(c, fiber.StatusOK, model.PaymentMethodsView{
		TheaterId: theaterID,
		Source:    source,
		Channel:   source.Channel(),
		Provider:  binding.ProviderName(),
		Methods:   methods,
	})
}

func channelParam(c *fiber.Ctx) (model.Channel, error) {
	switch ch := model.Channel(strings.ToLower(c.Params("channel"))); ch {
	case model.ChannelKiosk, model.ChannelOnline:
		return ch, nil
	}
	return "", apperror.Validation("channel must be kiosk or online")
}

func GetGatewayConfig(c *fiber.Ctx) error {
	theaterID, err := theaterParam(c, "theaterId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, err)
	}
	channel, err := channelParam(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	cfg, err := deps.Gateways.Config(c.UserContext(), theaterID, channel)
	if err != nil {
		return utils.DomainError(c, err)
	}
	if cfg == nil {
		return utils.DomainError(c, apperror.NotFound(fmt.Sprintf("no %s gateway configured", channel)))
	}
	return utils.SuccessResponse(c, fiber.StatusOK, cfg)
}

func UpdateGatewayConfig(c *fiber.Ctx) error {
	theaterID, err := theaterParam(c, "theaterId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, err)
	}
	channel, err := channelParam(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	if _, err := deps.Catalog.Theater(c.UserContext(), theaterID); err != nil {
		return utils.DomainError(c, err)
	}
	input := c.Locals("inputGatewayConfig").(model.GatewayConfigInput)
	cfg, err := deps.Gateways.Save(c.UserContext(), theaterID, channel, input)
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, cfg)
}

func GetDashboard(c *fiber.Ctx) error {
	theaterID, err := theaterParam(c, "theaterId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, err)
	}
	theater, err := deps.Catalog.Theater(c.UserContext(), theaterID)
	if err != nil {
		return utils.DomainError(c, err)
	}
	d, err := deps.Dashboard.Get(c.UserContext(), *theater, c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, d)
}
