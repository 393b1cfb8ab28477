package handler

import (
	"errors"

	"cinema_pos/constants"
	"cinema_pos/helper"
	"cinema_pos/model"
	"cinema_pos/utils"

	"github.com/gofiber/fiber/v2"
)

func setTokenCookie(c *fiber.Ctx, name, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		HTTPOnly: true,
		SameSite: "None",
		Secure:   deps.Settings.IsProduction(),
		Path:     "/",
	})
}

// Login authenticates staff, manager, admin and kiosk device accounts.
func Login(c *fiber.Ctx) error {
	input := c.Locals("inputLogin").(model.LoginInput)

	account, err := helper.GetUserByUsername(deps.DB.WithContext(c.UserContext()), input.Username)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, constants.ERROR_INTERNAL_ERROR, err)
	}
	if account == nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.INVALID_USERNAME, errors.New("username not exists"))
	}
	if !helper.CheckPasswordHash(input.Password, account.Password) {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.INVALID_PASSWORD, errors.New("password does not match username"))
	}
	if !account.Active {
		return utils.ErrorResponse(c, fiber.StatusForbidden, constants.ACCOUNT_NOT_ACTIVE, errors.New("active false"))
	}

	tokenClaim := model.TokenClaim{
		AccountId: account.ID,
		Username:  account.Username,
		TheaterId: account.TheaterId,
		Role:      account.Role,
	}
	token, err := helper.GenerateAccessToken(tokenClaim, deps.Settings.JWT.AccessTTL)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, constants.ERROR_INTERNAL_ERROR, err)
	}
	refreshToken, err := helper.GenerateRefreshToken(tokenClaim, deps.Settings.JWT.RefreshTTL)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, constants.ERROR_INTERNAL_ERROR, err)
	}

	setTokenCookie(c, "access_token", token)
	setTokenCookie(c, "refresh_token", refreshToken)

	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{
		"accessToken":  token,
		"refreshToken": refreshToken,
		"account": fiber.Map{
			"id":        account.ID,
			"username":  account.Username,
			"role":      account.Role,
			"theaterId": account.TheaterId,
		},
	})
}

// RefreshToken issues a new access token from the refresh_token cookie.
func RefreshToken(c *fiber.Ctx) error {
	refreshCookie := c.Cookies("refresh_token")
	if refreshCookie == "" {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.MISSING_TOKEN, errors.New("refresh token not found"))
	}
	token, err := helper.ParseToken(refreshCookie)
	if err != nil || !token.Valid {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.INVALID_TOKEN, err)
	}
	claim, kind, ok := helper.ClaimFromToken(token)
	if !ok || kind != "refresh" {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.INVALID_TOKEN, errors.New("not a refresh token"))
	}

	accessToken, err := helper.GenerateAccessToken(claim, deps.Settings.JWT.AccessTTL)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, constants.ERROR_INTERNAL_ERROR, err)
	}
	setTokenCookie(c, "access_token", accessToken)
	return utils.SuccessResponse(c, fiber.StatusOK, model.TokenData{AccessToken: accessToken})
}

// GuestLogin hands a short-lived GUEST token to a customer who scanned a
// seat QR code.
func GuestLogin(c *fiber.Ctx) error {
	input := c.Locals("inputGuestLogin").(model.GuestLoginInput)

	theater, err := deps.Catalog.TheaterBySlug(c.UserContext(), input.TheaterSlug)
	if err != nil {
		return utils.DomainError(c, err)
	}
	if !theater.Active {
		return utils.ErrorResponse(c, fiber.StatusNotFound, constants.THEATER_NOT_FOUND, errors.New("theater inactive"))
	}

	theaterID := theater.ID
	token, err := helper.GenerateAccessToken(model.TokenClaim{
		Username:  "guest",
		TheaterId: &theaterID,
		Role:      constants.ROLE_GUEST,
		QRName:    input.QRName,
	}, deps.Settings.JWT.GuestTTL)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, constants.ERROR_INTERNAL_ERROR, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{
		"accessToken": token,
		"theater":     theater,
		"qrName":      input.QRName,
	})
}

func Me(c *fiber.Ctx) error {
	claim, _ := helper.GetInfoAccountFromToken(c)
	return utils.SuccessResponse(c, fiber.StatusOK, claim)
}
