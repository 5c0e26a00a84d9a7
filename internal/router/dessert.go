package router

import (
	"errors"

	"dessert_market/internal/cart"
	"dessert_market/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type dessertRequest struct {
	Name        string          `json:"name" binding:"required,max=100"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	ImagePath   string          `json:"image_path" binding:"max=255"`
	Quantity    int             `json:"quantity" binding:"min=0"`
	IsAvailable bool            `json:"is_available"`
}

func bindDessert(c *gin.Context) (*dessertRequest, bool) {
	var req dessertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	if !req.Price.IsPositive() {
		badRequest(c, "price must be positive")
		return nil, false
	}
	return &req, true
}

// listDesserts 查询上架甜品；?all=true 返回全部。
func listDesserts(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := d.DB.WithContext(c.Request.Context()).Order("id")
		if c.Query("all") != "true" {
			q = q.Where("is_available = ?", true)
		}
		var list []model.Dessert
		if err := q.Find(&list).Error; err != nil {
			fail(c, d, err)
			return
		}
		ok(c, list)
	}
}

func findDessert(c *gin.Context, d *Deps) (*model.Dessert, bool) {
	id, valid := pathID(c, "id")
	if !valid {
		return nil, false
	}
	var p model.Dessert
	if err := d.DB.WithContext(c.Request.Context()).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = cart.ErrDessertNotFound
		}
		fail(c, d, err)
		return nil, false
	}
	return &p, true
}

func getDessert(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, found := findDessert(c, d); found {
			ok(c, p)
		}
	}
}

// getStock 优先读 Redis 缓存，未命中或 Redis 异常时回源数据库并回填。
func getStock(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, "id")
		if !valid {
			return
		}
		ctx := c.Request.Context()
		if d.Stock != nil {
			n, hit, err := d.Stock.GetStock(ctx, id)
			if err != nil {
				d.Log.WithError(err).WithField("dessert_id", id).Warn("stock cache read failed")
			}
			if hit {
				ok(c, gin.H{"dessert_id": id, "stock": n, "source": "cache"})
				return
			}
		}
		n, err := d.Carts.GetAvailableQuantity(ctx, id)
		if err != nil {
			fail(c, d, err)
			return
		}
		if d.Stock != nil {
			if err := d.Stock.SetStock(ctx, id, n); err != nil {
				d.Log.WithError(err).WithField("dessert_id", id).Warn("stock cache fill failed")
			}
		}
		ok(c, gin.H{"dessert_id": id, "stock": n, "source": "db"})
	}
}

func createDessert(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, valid := bindDessert(c)
		if !valid {
			return
		}
		p := &model.Dessert{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			ImagePath:   req.ImagePath,
			Quantity:    req.Quantity,
			IsAvailable: req.IsAvailable,
		}
		if err := d.DB.WithContext(c.Request.Context()).Create(p).Error; err != nil {
			fail(c, d, err)
			return
		}
		ok(c, p)
	}
}

// updateDessert 整体覆盖甜品字段；quantity 为扣除购物车预占后的可售数量。
func updateDessert(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := findDessert(c, d)
		if !found {
			return
		}
		req, valid := bindDessert(c)
		if !valid {
			return
		}
		p.Name = req.Name
		p.Description = req.Description
		p.Price = req.Price
		p.ImagePath = req.ImagePath
		p.Quantity = req.Quantity
		p.IsAvailable = req.IsAvailable
		err := d.DB.WithContext(c.Request.Context()).Save(p).Error
		if err != nil {
			fail(c, d, err)
			return
		}
		d.invalidateStock(c, p.ID)
		ok(c, p)
	}
}

// deleteDessert 删除甜品，引用它的购物车行随外键级联删除。
func deleteDessert(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, found := findDessert(c, d)
		if !found {
			return
		}
		if err := d.DB.WithContext(c.Request.Context()).Delete(p).Error; err != nil {
			fail(c, d, err)
			return
		}
		d.invalidateStock(c, p.ID)
		ok(c, gin.H{"id": p.ID})
	}
}

func (d *Deps) invalidateStock(c *gin.Context, id uint) {
	if d.Stock == nil {
		return
	}
	if err := d.Stock.Invalidate(c.Request.Context(), id); err != nil {
		d.Log.WithError(err).WithField("dessert_id", id).Warn("stock cache invalidate failed")
	}
}
