// Package catalog serves theaters and products to the order core.
package catalog

import (
	"context"
	"errors"
	"strings"

	"cinema_pos/apperror"
	"cinema_pos/constants"
	"cinema_pos/helper"
	"cinema_pos/model"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

type Catalog struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) CreateTheater(ctx context.Context, input model.CreateTheaterInput) (*model.Theater, error) {
	theater := model.Theater{
		Name:     input.Name,
		Code:     strings.ToUpper(input.Code),
		Timezone: input.Timezone,
		Active:   true,
	}
	if theater.Timezone == "" {
		theater.Timezone = "Asia/Kolkata"
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := helper.GenerateUniqueTheaterSlug(tx, input.Name)
		if err != nil {
			return err
		}
		theater.Slug = slug
		return tx.Create(&theater).Error
	})
	if err != nil {
		return nil, err
	}
	return &theater, nil
}

func (c *Catalog) Theater(ctx context.Context, id uint) (*model.Theater, error) {
	var theater model.Theater
	err := c.db.WithContext(ctx).First(&theater, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound(constants.THEATER_NOT_FOUND)
	}
	if err != nil {
		return nil, err
	}
	return &theater, nil
}

func (c *Catalog) TheaterBySlug(ctx context.Context, slug string) (*model.Theater, error) {
	var theater model.Theater
	err := c.db.WithContext(ctx).Where("slug = ?", slug).First(&theater).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound(constants.THEATER_NOT_FOUND)
	}
	if err != nil {
		return nil, err
	}
	return &theater, nil
}

func (c *Catalog) ActiveTheaterIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := c.db.WithContext(ctx).Model(&model.Theater{}).Where("active = ?", true).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// ProductsByID loads the given products of one theater keyed by id. Products
// of other theaters are not returned.
func (c *Catalog) ProductsByID(ctx context.Context, theaterID uint, ids []uint) (map[uint]model.Product, error) {
	var products []model.Product
	if err := c.db.WithContext(ctx).
		Where("theater_id = ? AND id IN ?", theaterID, ids).
		Find(&products).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]model.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (c *Catalog) Products(ctx context.Context, theaterID uint, activeOnly bool) ([]model.Product, error) {
	var products []model.Product
	q := c.db.WithContext(ctx).Where("theater_id = ?", theaterID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	err := q.Order("category").Order("name").Find(&products).Error
	return products, err
}

func (c *Catalog) Product(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	err := c.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound(constants.PRODUCT_NOT_FOUND)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Catalog) CreateProduct(ctx context.Context, input model.CreateProductInput) (*model.Product, error) {
	if _, err := c.Theater(ctx, input.TheaterId); err != nil {
		return nil, err
	}
	var p model.Product
	if err := copier.Copy(&p, &input); err != nil {
		return nil, err
	}
	p.Active = true
	if p.ImagePublicId == "" {
		p.ImagePublicId = helper.ExtractPublicID(p.ImageUrl)
	}
	if err := c.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Catalog) UpdateProduct(ctx context.Context, id uint, input model.EditProductInput) (*model.Product, error) {
	p, err := c.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := copier.CopyWithOption(p, &input, copier.Option{IgnoreEmpty: true}); err != nil {
		return nil, err
	}
	if input.ImageUrl != nil && input.ImagePublicId == nil {
		p.ImagePublicId = helper.ExtractPublicID(*input.ImageUrl)
	}
	if err := c.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Catalog) SetProductImage(ctx context.Context, id uint, publicID, url string) error {
	return c.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).
		Updates(map[string]any{"image_public_id": publicID, "image_url": url}).Error
}
