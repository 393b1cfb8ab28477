package handler

import (
	"errors"

	"cinema_pos/apperror"
	"cinema_pos/constants"
	"cinema_pos/helper"
	"cinema_pos/model"
	"cinema_pos/utils"

	"github.com/gofiber/fiber/v2"
)

func productView(p model.Product, stock int64) model.ProductView {
	p.ImageUrl = helper.ProductImageURL(deps.Cloudinary, p)
	return model.ProductView{Product: p, Stock: stock}
}

// GetProducts lists a theater's menu with live available stock.
// Pass ?all=true to include inactive products.
func GetProducts(c *fiber.Ctx) error {
	theaterID, err := theaterParam(c, "theaterId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, err)
	}
	products, err := deps.Catalog.Products(c.UserContext(), theaterID, !c.QueryBool("all"))
	if err != nil {
		return utils.DomainError(c, err)
	}
	ids := make([]uint, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	stock, err := deps.Ledger.Available(c.UserContext(), theaterID, ids)
	if err != nil {
		return utils.DomainError(c, err)
	}

	views := make([]model.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, productView(p, stock[p.ID]))
	}
	return utils.SuccessResponse(c, fiber.StatusOK, views)
}

func CreateProduct(c *fiber.Ctx) error {
	input := c.Locals("inputCreateProduct").(model.CreateProductInput)
	if err := authorizedTheater(c, input.TheaterId); err != nil {
		return utils.DomainError(c, err)
	}

	product, err := deps.Catalog.CreateProduct(c.UserContext(), input)
	if err != nil {
		return utils.DomainError(c, err)
	}
	if err := deps.Ledger.Init(c.UserContext(), product.TheaterId, product.ID, input.InitialStock); err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, productView(*product, input.InitialStock))
}

// ownedProduct loads the :productId product and checks the caller's theater.
func ownedProduct(c *fiber.Ctx) (*model.Product, error) {
	product, err := deps.Catalog.Product(c.UserContext(), c.Locals("inputId").(uint))
	if err != nil {
		return nil, err
	}
	if err := authorizedTheater(c, product.TheaterId); err != nil {
		return nil, err
	}
	return product, nil
}

func EditProduct(c *fiber.Ctx) error {
	product, err := ownedProduct(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	input := c.Locals("inputEditProduct").(model.EditProductInput)
	updated, err := deps.Catalog.UpdateProduct(c.UserContext(), product.ID, input)
	if err != nil {
		return utils.DomainError(c, err)
	}
	stock, err := deps.Ledger.Available(c.UserContext(), updated.TheaterId, []uint{updated.ID})
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, productView(*updated, stock[updated.ID]))
}

func RestockProduct(c *fiber.Ctx) error {
	product, err := ownedProduct(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	input := c.Locals("inputRestock").(model.RestockInput)
	level, err := deps.Ledger.Restock(c.UserContext(), product.TheaterId, product.ID, input.Quantity)
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, level)
}

// UploadProductImage stores the multipart "image" file on Cloudinary and
// replaces the product's previous image.
func UploadProductImage(c *fiber.Ctx) error {
	product, err := ownedProduct(c)
	if err != nil {
		return utils.DomainError(c, err)
	}
	if deps.Cloudinary == nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Image upload is not configured", errors.New("cloudinary missing"))
	}
	header, err := c.FormFile("image")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.ERROR_INPUT, err)
	}
	file, err := header.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.ERROR_INPUT, err)
	}
	defer file.Close()

	publicID, secureURL, err := helper.UploadProductImage(c.UserContext(), deps.Cloudinary, *product, file)
	if err != nil {
		return utils.DomainError(c, apperror.Internal(err))
	}
	if err := deps.Catalog.SetProductImage(c.UserContext(), product.ID, publicID, secureURL); err != nil {
		return utils.DomainError(c, err)
	}
	helper.DestroyImage(c.UserContext(), deps.Cloudinary, product.ImagePublicId)

	product.ImagePublicId = publicID
	product.ImageUrl = secureURL
	stock, err := deps.Ledger.Available(c.UserContext(), product.TheaterId, []uint{product.ID})
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, productView(*product, stock[product.ID]))
}
