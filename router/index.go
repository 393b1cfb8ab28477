package router

import (
	"cinema_pos/constants"
	"cinema_pos/handler"
	"cinema_pos/middleware"
	"cinema_pos/validate"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

const (
	admin   = constants.ROLE_ADMIN
	manager = constants.ROLE_MANAGER
	staff   = constants.ROLE_STAFF
	kiosk   = constants.ROLE_KIOSK
	guest   = constants.ROLE_GUEST
)

func SetupRoutes(app *fiber.App) {
	api := app.Group("/api", logger.New())
	v1 := api.Group("/v1")

	v1.Get("/health", handler.Health)

	auth := v1.Group("/auth")
	auth.Post("/login", validate.Login(), handler.Login)
	auth.Post("/guest", validate.GuestLogin(), handler.GuestLogin)
	auth.Post("/refresh-token", handler.RefreshToken)
	auth.Get("/me", middleware.Protected(), handler.Me)

	theater := v1.Group("/theaters")
	theater.Post("/", middleware.Protected(), middleware.RequireRoles(admin), validate.CreateTheater(), handler.CreateTheater)
	theater.Get("/:theaterId", middleware.Protected(), middleware.TheaterScope("theaterId"), handler.GetTheaterById)
	theater.Get("/:theaterId/products", middleware.Protected(), middleware.TheaterScope("theaterId"), handler.GetProducts)
	theater.Get("/:theaterId/payment-methods", middleware.Protected(), middleware.TheaterScope("theaterId"), handler.GetPaymentMethods)
	theater.Get("/:theaterId/qr.png", middleware.Protected(), middleware.RequireRoles(admin, manager), middleware.TheaterScope("theaterId"), handler.GetQRCode)
	theater.Get("/:theaterId/dashboard", middleware.Protected(), middleware.RequireRoles(admin, manager), middleware.TheaterScope("theaterId"), handler.GetDashboard)
	theater.Get("/:theaterId/gateway/:channel", middleware.Protected(), middleware.RequireRoles(admin, manager), middleware.TheaterScope("theaterId"), handler.GetGatewayConfig)
	theater.Put("/:theaterId/gateway/:channel", middleware.Protected(), middleware.RequireRoles(admin, manager), middleware.TheaterScope("theaterId"), validate.GatewayConfig(), handler.UpdateGatewayConfig)

	product := v1.Group("/products")
	product.Post("/", middleware.Protected(), middleware.RequireRoles(admin, manager), validate.CreateProduct(), handler.CreateProduct)
	product.Put("/:productId", middleware.Protected(), middleware.RequireRoles(admin, manager), validate.GetById("productId"), validate.EditProduct(), handler.EditProduct)
	product.Post("/:productId/restock", middleware.Protected(), middleware.RequireRoles(admin, manager, staff), validate.GetById("productId"), validate.Restock(), handler.RestockProduct)
	product.Post("/:productId/image", middleware.Protected(), middleware.RequireRoles(admin, manager), validate.GetById("productId"), handler.UploadProductImage)

	order := v1.Group("/orders")
	order.Post("/", middleware.Protected(), validate.AcceptOrder(), handler.AcceptOrder)
	order.Get("/", middleware.Protected(), middleware.RequireRoles(admin, manager, staff), validate.ListOrders(), handler.GetOrders)
	order.Get("/:orderId", middleware.Protected(), handler.GetOrderById)
	order.Get("/:orderId/receipt", middleware.Protected(), handler.GetOrderReceipt)
	order.Post("/:orderId/complete", middleware.Protected(), middleware.RequireRoles(admin, manager, staff), handler.CompleteOrder)
	order.Post("/:orderId/cancel", middleware.Protected(), middleware.RequireRoles(admin, manager, staff), validate.CancelOrder(), handler.CancelOrder)
	order.Post("/:orderId/confirm", middleware.Protected(), middleware.RequireRoles(admin, manager, staff, kiosk), handler.ConfirmOrder)
	order.Post("/:orderId/settle", middleware.Protected(), middleware.RequireRoles(admin, manager, staff), validate.SettleOrder(), handler.SettleOrder)

	payment := v1.Group("/payments")
	payment.Post("/create", middleware.Protected(), middleware.RequireRoles(admin, manager, staff, kiosk, guest), validate.CreatePayment(), handler.CreatePayment)
	payment.Post("/verify", middleware.Protected(), middleware.RequireRoles(admin, manager, staff, kiosk, guest), validate.VerifyPayment(), handler.VerifyPayment)
	payment.Post("/paytm/callback", handler.PaytmCallback)
	payment.Post("/phonepe/callback", handler.PhonePeCallback)

	v1.Get("/stream/:theaterId", middleware.Protected(), middleware.RequireRoles(admin, manager, staff, kiosk), middleware.TheaterScope("theaterId"), handler.StreamUpgrade, websocket.New(handler.OrderStream))
}
