package handler

import (
	"errors"
	"strconv"

	"cinema_pos/apperror"
	"cinema_pos/catalog"
	"cinema_pos/config"
	"cinema_pos/constants"
	"cinema_pos/dashboard"
	"cinema_pos/events"
	"cinema_pos/gateway"
	"cinema_pos/helper"
	"cinema_pos/ledger"
	"cinema_pos/lifecycle"
	"cinema_pos/model"
	"cinema_pos/orderstore"
	"cinema_pos/receipt"
	"cinema_pos/utils"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Deps are the services the HTTP handlers call into.
type Deps struct {
	Settings    *config.Settings
	DB          *gorm.DB
	Catalog     *catalog.Catalog
	Ledger      *ledger.Ledger
	Orders      *orderstore.Store
	Coordinator *lifecycle.Coordinator
	Gateways    *gateway.ConfigResolver
	Dashboard   *dashboard.Cache
	Receipts    *receipt.Service
	Hub         *events.Hub
	Cloudinary  *cloudinary.Cloudinary
}

var deps Deps

func Init(d Deps) {
	deps = d
}

func theaterParam(c *fiber.Ctx, key string) (uint, error) {
	if id, ok := c.Locals("theaterId").(uint); ok {
		return id, nil
	}
	id, err := strconv.ParseUint(c.Params(key), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("params invalid")
	}
	return uint(id), nil
}

// authorizedTheater is for handlers whose theater comes from the body or
// the loaded record rather than the route.
func authorizedTheater(c *fiber.Ctx, theaterID uint) error {
	claim, _ := helper.GetInfoAccountFromToken(c)
	if !helper.CanAccessTheater(claim, theaterID) {
		return apperror.Forbidden(constants.FORBIDDEN_THEATER)
	}
	return nil
}

// loadOrder fetches the :orderId order and checks the caller may see it.
func loadOrder(c *fiber.Ctx) (*model.Order, error) {
	order, err := deps.Orders.Get(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return nil, err
	}
	if err := authorizedTheater(c, order.TheaterId); err != nil {
		return nil, err
	}
	return order, nil
}

func Health(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"ok": true})
}
