package store

import (
	"context"
	"fmt"
	"os"

	"dessert_market/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Catalog 是种子文件的结构，金额用字符串避免浮点误差。
type Catalog struct {
	Desserts []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Price       string `yaml:"price"`
		ImagePath   string `yaml:"image_path"`
		Quantity    int    `yaml:"quantity"`
	} `yaml:"desserts"`
	Listings []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		ImagePath   string `yaml:"image_path"`
		StartingBid string `yaml:"starting_bid"`
	} `yaml:"listings"`
}

// LoadCatalog 解析 YAML 种子文件。
func LoadCatalog(path string) (Catalog, error) {
	var c Catalog
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return c, nil
}

// Seed 仅在对应表为空时写入种子数据，重复启动不会重复插入。
func Seed(ctx context.Context, db *gorm.DB, c Catalog) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Dessert{}).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			for _, d := range c.Desserts {
				price, err := decimal.NewFromString(d.Price)
				if err != nil {
					return fmt.Errorf("dessert %q price: %w", d.Name, err)
				}
				row := &model.Dessert{
					Name:        d.Name,
					Description: d.Description,
					Price:       price,
					ImagePath:   d.ImagePath,
					Quantity:    d.Quantity,
					IsAvailable: d.Quantity > 0,
				}
				if err := tx.Create(row).Error; err != nil {
					return err
				}
			}
		}

		if err := tx.Model(&model.Listing{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for _, l := range c.Listings {
			start, err := decimal.NewFromString(l.StartingBid)
			if err != nil {
				return fmt.Errorf("listing %q starting_bid: %w", l.Name, err)
			}
			row := &model.Listing{
				Name:        l.Name,
				Description: l.Description,
				ImagePath:   l.ImagePath,
				StartingBid: start,
				CurrentBid:  start,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
