package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/fitmirror/internal/retry"
)

// ErrProductNotFound is returned when the catalog has no product with the given id.
var ErrProductNotFound = errors.New("product not found")

// Product is the subset of the clothing catalog the mirror needs.
type Product struct {
	ID           string `gorm:"primaryKey;size:64" json:"id"`
	Name         string `gorm:"column:name;size:255" json:"name"`
	GarmentType  string `gorm:"column:garment_type;size:32" json:"garment_type"`
	DisplayColor string `gorm:"column:display_color;size:16" json:"display_color"`
}

// TableName overrides the default table name.
func (Product) TableName() string {
	return "clothing_products"
}

// ProductRepository looks up catalog entries.
type ProductRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewProductRepository creates a catalog repository.
func NewProductRepository(db *gorm.DB, logger *zap.Logger) *ProductRepository {
	return &ProductRepository{db: db, logger: logger.Named("product_repository"), policy: retry.DefaultPolicy()}
}

// FindProduct returns the product or ErrProductNotFound.
func (r *ProductRepository) FindProduct(ctx context.Context, id string) (*Product, error) {
	var product Product
	var notFound bool
	err := retry.Do(ctx, r.policy, r.logger, "repository.find_product", "", func() error {
		err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return &product, nil
}

// SaveProduct inserts or updates a catalog entry.
func (r *ProductRepository) SaveProduct(ctx context.Context, product *Product) error {
	return retry.Do(ctx, r.policy, r.logger, "repository.save_product", "", func() error {
		return r.db.WithContext(ctx).Save(product).Error
	})
}
