package helper

import (
	"errors"
	"fmt"
	"time"

	"cinema_pos/constants"
	"cinema_pos/model"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var JwtSecret = []byte("change-me")

func SetJWTSecret(secret string) {
	JwtSecret = []byte(secret)
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func GetUserByUsername(db *gorm.DB, u string) (*model.Account, error) {
	var account model.Account
	if err := db.Where(&model.Account{Username: u}).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func generateToken(tokenClaim model.TokenClaim, kind string, ttl time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["username"] = tokenClaim.Username
	claims["accountId"] = tokenClaim.AccountId
	claims["role"] = tokenClaim.Role
	claims["typ"] = kind
	if tokenClaim.TheaterId != nil {
		claims["theaterId"] = *tokenClaim.TheaterId
	}
	if tokenClaim.QRName != "" {
		claims["qrName"] = tokenClaim.QRName
	}
	claims["exp"] = time.Now().Add(ttl).Unix()

	return token.SignedString(JwtSecret)
}

func GenerateAccessToken(tokenClaim model.TokenClaim, ttl time.Duration) (string, error) {
	return generateToken(tokenClaim, "access", ttl)
}

func GenerateRefreshToken(tokenClaim model.TokenClaim, ttl time.Duration) (string, error) {
	return generateToken(tokenClaim, "refresh", ttl)
}

func ParseToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return JwtSecret, nil
	})
}

// ClaimFromToken reads the claims of a parsed token.
func ClaimFromToken(token *jwt.Token) (model.TokenClaim, string, bool) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.TokenClaim{}, "", false
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return model.TokenClaim{}, "", false
	}
	claim := model.TokenClaim{Role: role}
	if id, ok := claims["accountId"].(float64); ok {
		claim.AccountId = uint(id)
	}
	claim.Username, _ = claims["username"].(string)
	claim.QRName, _ = claims["qrName"].(string)
	if tid, ok := claims["theaterId"].(float64); ok && tid > 0 {
		id := uint(tid)
		claim.TheaterId = &id
	}
	kind, _ := claims["typ"].(string)
	return claim, kind, true
}

// GetInfoAccountFromToken returns the claims that middleware.Protected stored
// for this request.
func GetInfoAccountFromToken(c *fiber.Ctx) (model.TokenClaim, bool) {
	claim, ok := c.Locals("claim").(model.TokenClaim)
	return claim, ok
}

// Actor names the caller in audit records.
func Actor(c *fiber.Ctx) string {
	claim, ok := GetInfoAccountFromToken(c)
	if !ok {
		return "anonymous"
	}
	if claim.Role == constants.ROLE_GUEST {
		if claim.QRName != "" {
			return "guest:" + claim.QRName
		}
		return "guest"
	}
	return fmt.Sprintf("%s:%s", claim.Role, claim.Username)
}

// CanAccessTheater reports whether the caller may act on theaterID.
// Admins are not bound to a theater.
func CanAccessTheater(claim model.TokenClaim, theaterID uint) bool {
	if claim.Role == constants.ROLE_ADMIN {
		return true
	}
	return claim.TheaterId != nil && *claim.TheaterId == theaterID
}
