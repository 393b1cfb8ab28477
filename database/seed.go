package database

import (
	"context"
	"errors"

	"cinema_pos/constants"
	"cinema_pos/model"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gosimple/slug"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// StockInitializer creates the stock row for a seeded product.
type StockInitializer interface {
	Init(ctx context.Context, theaterID, productID uint, initial int64) error
}

func SeedAdmin(db *gorm.DB, password string) error {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return err
	}
	admin := model.Account{Username: "administrator", Password: string(bytes), Active: true, Role: constants.ROLE_ADMIN}
	return db.Where(model.Account{Username: admin.Username}).FirstOrCreate(&admin).Error
}

// SeedDemo creates one theater with a small menu, its kiosk gateway config
// (cash only) and a staff account. Existing rows are kept.
func SeedDemo(ctx context.Context, db *gorm.DB, stock StockInitializer) error {
	theater := model.Theater{Name: "Galaxy Cinemas Andheri", Code: "GAL", Timezone: "Asia/Kolkata", Active: true}
	theater.Slug = slug.Make(theater.Name)
	if err := db.Where(model.Theater{Slug: theater.Slug}).FirstOrCreate(&theater).Error; err != nil {
		return err
	}

	products := []model.Product{
		{Name: "Salted Popcorn (L)", BasePrice: 34000, TaxRate: 5, GSTType: model.GSTInclude, Category: "food"},
		{Name: "Cheese Nachos", BasePrice: 28000, TaxRate: 5, GSTType: model.GSTInclude, Category: "food"},
		{Name: "Cold Coffee", BasePrice: 22000, TaxRate: 18, GSTType: model.GSTExclude, Category: "beverages"},
		{Name: "Pepsi (M)", BasePrice: 18000, TaxRate: 18, GSTType: model.GSTExclude, Category: "beverages"},
		{Name: "Popcorn + Pepsi Combo", BasePrice: 52000, OfferPrice: 45000, TaxRate: 5, GSTType: model.GSTInclude, Category: "combos"},
	}
	for _, p := range products {
		p.TheaterId = theater.ID
		p.Active = true
		if err := db.Where(model.Product{TheaterId: theater.ID, Name: p.Name}).FirstOrCreate(&p).Error; err != nil {
			return err
		}
		if err := stock.Init(ctx, theater.ID, p.ID, 100); err != nil {
			return err
		}
	}

	cfg := model.GatewayConfig{TheaterId: theater.ID, Channel: model.ChannelKiosk, Provider: model.ProviderNone, AcceptedMethods: "cash"}
	if err := db.Where(model.GatewayConfig{TheaterId: theater.ID, Channel: model.ChannelKiosk}).FirstOrCreate(&cfg).Error; err != nil {
		return err
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte("counter123"), 10)
	if err != nil {
		return err
	}
	staff := model.Account{Username: "counter-" + theater.Code, Password: string(bytes), Active: true, Role: constants.ROLE_STAFF, TheaterId: &theater.ID}
	if err := db.Where(model.Account{Username: staff.Username}).FirstOrCreate(&staff).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	log.Infof("demo data seeded for theater %s", theater.Slug)
	return nil
}
