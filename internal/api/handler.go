package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"inventory-service/internal/lock"
	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	inventory *service.InventoryService
	carts     *service.CartService
	validator *service.CatalogValidator
}

// NewHandler creates a new HTTP handler
func NewHandler(inventory *service.InventoryService, carts *service.CartService, validator *service.CatalogValidator) *Handler {
	return &Handler{
		inventory: inventory,
		carts:     carts,
		validator: validator,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/cart/merge", h.mergeCart)
		v1.POST("/reservations", h.reserve)
		v1.POST("/reservations/finalize", h.finalize)
		v1.POST("/reservations/release", h.release)
		v1.POST("/skus/:id/units", h.addUnits)
		v1.POST("/skus/validate", h.validateSKU)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type mergeCartRequest struct {
	UserID int64             `json:"user_id" binding:"required"`
	Lines  []models.CartLine `json:"lines" binding:"required,min=1"`
}

// mergeCart merges a delta into the user's cart
func (h *Handler) mergeCart(c *gin.Context) {
	var req mergeCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cart, err := h.carts.MergeLines(c.Request.Context(), req.UserID, req.Lines)
	if err != nil {
		var invalid *service.InvalidProductError
		switch {
		case errors.Is(err, lock.ErrLockBusy):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Cart is being updated, retry shortly",
			})
		case errors.As(err, &invalid):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":         "One or more lines reference an unknown product",
				"invalid_lines": invalid.Lines,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to merge cart",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, cart)
}

type reserveRequest struct {
	SKUID int64 `json:"sku_id" binding:"required"`
	Count int   `json:"count" binding:"required,min=1"`
}

// reserve holds serial units of a SKU
func (h *Handler) reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	numbers, err := h.inventory.Reserve(c.Request.Context(), req.SKUID, req.Count)
	if err != nil {
		var insufficient *store.InsufficientStockError
		switch {
		case errors.As(err, &insufficient):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "Insufficient stock",
				"requested": insufficient.Requested,
				"available": insufficient.Available,
			})
		case errors.Is(err, service.ErrSKUNotSellable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "SKU does not exist or is not sellable",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to reserve units",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"serial_numbers": numbers})
}

type serialRequest struct {
	SerialNumber string `json:"serial_number" binding:"required"`
}

// finalize flips a held unit to sold
func (h *Handler) finalize(c *gin.Context) {
	var req serialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.inventory.Finalize(c.Request.Context(), req.SerialNumber); err != nil {
		if errors.Is(err, store.ErrNotHeld) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Unit is not held",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to finalize unit",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sold"})
}

// release flips a held unit back to available; idempotent
func (h *Handler) release(c *gin.Context) {
	var req serialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.inventory.Release(c.Request.Context(), req.SerialNumber); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to release unit",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "released"})
}

type addUnitsRequest struct {
	Numbers []string `json:"numbers" binding:"required,min=1"`
}

// addUnits creates serial records for a SKU in bulk
func (h *Handler) addUnits(c *gin.Context) {
	skuID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid SKU ID",
		})
		return
	}

	var req addUnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.inventory.AddUnits(c.Request.Context(), skuID, req.Numbers)
	if err != nil {
		var noneAdded *store.NoUnitsAddedError
		switch {
		case errors.As(err, &noneAdded):
			c.JSON(http.StatusConflict, gin.H{
				"error":    "All serial numbers already exist",
				"rejected": noneAdded.Rejected,
			})
		case errors.Is(err, service.ErrSKUNotSellable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "SKU does not exist",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to add units",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

type validateSKURequest struct {
	SPUID        int64               `json:"spu_id" binding:"required"`
	SPUModelSlug string              `json:"spu_model_slug" binding:"required"`
	Attributes   models.AttributeSet `json:"attributes" binding:"required,min=1"`
}

// validateSKU checks an attribute set for duplicates under a product model
func (h *Handler) validateSKU(c *gin.Context) {
	var req validateSKURequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	err := h.validator.ValidateNoDuplicateAttributes(
		c.Request.Context(), req.SPUID, req.SPUModelSlug, req.Attributes)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateSku) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Duplicate SKU attribute set",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to validate SKU",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
