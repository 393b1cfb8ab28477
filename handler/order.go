package handler

import (
	"strings"

	"cinema_pos/apperror"
	"cinema_pos/constants"
	"cinema_pos/helper"
	"cinema_pos/model"
	"cinema_pos/receipt"
	"cinema_pos/utils"

	"github.com/gofiber/fiber/v2"
)

// AcceptOrder is the single entry point for POS, kiosk and QR orders.
// A replayed idempotency key answers exactly like the first call; only the
// Idempotent-Replayed header tells the two apart.
func AcceptOrder(c *fiber.Ctx) error {
	input := c.Locals("inputAcceptOrder").(model.AcceptOrderInput)
	if err := authorizedTheater(c, input.TheaterId); err != nil {
		return utils.DomainError(c, err)
	}

	claim, _ := helper.GetInfoAccountFromToken(c)
	if claim.Role == constants.ROLE_GUEST {
		if input.Source.OrderType() != model.OrderTypeOnline {
			return utils.DomainError(c, apperror.Forbidden("guests may only place online orders"))
		}
		if input.QRName == "" {
			input.QRName = claim.QRName
		}
	}

	res, err := deps.Coordinator.Accept(c.UserContext(), input, helper.Actor(c))
	if err != nil {
		return utils.DomainError(c, err)
	}
	if res.Replayed {
		c.Set("Idempotent-Replayed", "true")
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, res)
}

// GetOrders lists orders of one theater. Callers bound to a theater always
// see their own.
func GetOrders(c *fiber.Ctx) error {
	filter := c.Locals("inputListOrders").(model.FilterOrder)
	claim, _ := helper.GetInfoAccountFromToken(c)
	if filter.TheaterId == 0 && claim.TheaterId != nil {
		filter.TheaterId = *claim.TheaterId
	}
	if filter.TheaterId == 0 {
		return utils.DomainError(c, apperror.Validation("theaterId is required"))
	}
	if err := authorizedTheater(c, filter.TheaterId); err != nil {
		return utils.DomainError(c, err)
	}

	res, err := deps.Orders.List(c.UserContext(), filter)
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, res)
}

func GetOrderById(c *fiber.Ctx) error {
	order, err := loadOrder(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, order)
}

// GetOrderReceipt renders the bill as HTML. ?template=category_docket with
// ?category= renders a kitchen docket, ?print=1 adds auto-print and
// ?format=url returns the archived copy's presigned link instead.
func GetOrderReceipt(c *fiber.Ctx) error {
	order, err := loadOrder(c)
	if err != nil {
		return utils.DomainError(c, err)
	}

	if c.Query("format") == "url" {
		link, err := deps.Receipts.ArchivedURL(c.UserContext(), order)
		if err != nil {
			return utils.DomainError(c, apperror.Internal(err))
		}
		if link == "" {
			return utils.DomainError(c, apperror.NotFound("no archived receipt for order "+order.OrderNumber))
		}
		return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"url": link})
	}

	bill, err := deps.Receipts.Bill(c.UserContext(), order)
	if err != nil {
		return utils.DomainError(c, err)
	}
	templateID := c.Query("template", receipt.TemplateGSTBill)
	switch templateID {
	case receipt.TemplateGSTBill:
	case receipt.TemplateCategoryDocket:
		category := strings.TrimSpace(c.Query("category"))
		if category == "" {
			return utils.DomainError(c, apperror.Validation("category is required for a docket"))
		}
		bill = bill.ForCategory(category)
		if len(bill.Lines) == 0 {
			return utils.DomainError(c, apperror.NotFound("no items in category "+category))
		}
	default:
		return utils.DomainError(c, apperror.Validation("unknown template %q", templateID))
	}

	html, err := deps.Receipts.Renderer().Render(templateID, bill, c.QueryBool("print"))
	if err != nil {
		return utils.DomainError(c, apperror.Internal(err))
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(html)
}

func CompleteOrder(c *fiber.Ctx) error {
	order, err := loadOrder(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	done, err := deps.Coordinator.Complete(c.UserContext(), order.ID, helper.Actor(c))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, done)
}

func CancelOrder(c *fiber.Ctx) error {
	order, err := loadOrder(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	input := c.Locals("inputCancelOrder").(model.CancelOrderInput)
	cancelled, err := deps.Coordinator.Cancel(c.UserContext(), order.ID, input, helper.Actor(c))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, cancelled)
}

func ConfirmOrder(c *fiber.Ctx) error {
	order, err := loadOrder(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	confirmed, err := deps.Coordinator.Confirm(c.UserContext(), order.ID, helper.Actor(c))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, confirmed)
}

func SettleOrder(c *fiber.Ctx) error {
	order, err := loadOrder(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	input := c.Locals("inputSettleOrder").(model.SettleOrderInput)
	paid, err := deps.Coordinator.Settle(c.UserContext(), order.ID, input, helper.Actor(c))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, paid)
}
