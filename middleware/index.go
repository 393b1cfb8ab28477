package middleware

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	"cinema_pos/constants"
	"cinema_pos/helper"
	"cinema_pos/utils"

	"github.com/gofiber/fiber/v2"
)

// Protected accepts an access token from the access_token cookie, an
// Authorization: Bearer header or, for websocket upgrades, the access_token
// query parameter.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies("access_token")

		if token == "" {
			auth := c.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if token == "" {
			token = c.Query("access_token")
		}

		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.MISSING_TOKEN, errors.New("no token"))
		}

		jwtToken, err := helper.ParseToken(token)
		if err != nil || !jwtToken.Valid {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.INVALID_TOKEN, err)
		}
		claim, kind, ok := helper.ClaimFromToken(jwtToken)
		if !ok || kind != "access" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.INVALID_TOKEN, errors.New("not an access token"))
		}

		c.Locals("user", jwtToken)
		c.Locals("claim", claim)
		return c.Next()
	}
}

// RequireRoles must run after Protected.
func RequireRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claim, ok := helper.GetInfoAccountFromToken(c)
		if !ok || !slices.Contains(roles, claim.Role) {
			return utils.ErrorResponse(c, fiber.StatusForbidden, constants.FORBIDDEN_ROLE, errors.New("role not allowed"))
		}
		return c.Next()
	}
}

// TheaterScope rejects callers bound to a different theater than the one
// named by the route parameter.
func TheaterScope(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params(param), 10, 64)
		if err != nil || id == 0 {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, constants.DATA_INPUT_IS_NOT_NUMBER, errors.New("params invalid"))
		}
		claim, _ := helper.GetInfoAccountFromToken(c)
		if !helper.CanAccessTheater(claim, uint(id)) {
			return utils.ErrorResponse(c, fiber.StatusForbidden, constants.FORBIDDEN_THEATER, errors.New("theater mismatch"))
		}
		c.Locals("theaterId", uint(id))
		return c.Next()
	}
}
