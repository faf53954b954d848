// Package api exposes the simulator over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/valeevte/valora/internal/analytics"
	"github.com/valeevte/valora/internal/logging"
	"github.com/valeevte/valora/internal/products"
	"github.com/valeevte/valora/internal/simulation"
)

type Ticker interface {
	Tick(ctx context.Context, id products.ProductID) (simulation.TickResult, error)
}

type Snapshotter interface {
	Snapshot(ctx context.Context) (analytics.Snapshot, error)
}

type Handler struct {
	store     products.Store
	ticker    Ticker
	dashboard Snapshotter
}

func NewHandler(store products.Store, ticker Ticker, dashboard Snapshotter) *Handler {
	return &Handler{store: store, ticker: ticker, dashboard: dashboard}
}

func (h *Handler) RegisterRoutes(api gin.IRouter) {
	api.GET("/products", h.ListProducts)
	api.POST("/products", h.CreateProduct)
	api.GET("/products/:id", h.GetProduct)
	api.DELETE("/products/:id", h.DeleteProduct)
	api.GET("/products/:id/history", h.GetPriceHistory)
	api.POST("/products/:id/tick", h.Tick)
	api.GET("/dashboard", h.Dashboard)
}

type createProductRequest struct {
	Name         string   `json:"name" binding:"required"`
	InitialPrice *float64 `json:"initial_price" binding:"required"`
}

// productView is a product with its current price.
type productView struct {
	products.Product
	CurrentPrice float64 `json:"current_price"`
}

type tickResponse struct {
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var input createProductRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	ctx := c.Request.Context()
	id, err := h.store.AddProduct(ctx, input.Name, *input.InitialPrice)
	if err != nil {
		writeError(c, "CreateProduct", err)
		return
	}
	p, err := h.store.GetProduct(ctx, id)
	if err != nil {
		writeError(c, "CreateProduct", err)
		return
	}
	logging.Info(ctx, "product created", "product_id", id, "name", p.Name)
	c.JSON(http.StatusCreated, productView{Product: p, CurrentPrice: p.InitialPrice})
}

func (h *Handler) ListProducts(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.store.ListProducts(ctx)
	if err != nil {
		writeError(c, "ListProducts", err)
		return
	}
	out := make([]productView, 0, len(list))
	for _, p := range list {
		price, err := h.store.LatestPrice(ctx, p.ID)
		if errors.Is(err, products.ErrNotFound) {
			continue // deleted meanwhile
		}
		if err != nil {
			writeError(c, "ListProducts", err)
			return
		}
		out = append(out, productView{Product: p, CurrentPrice: price})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	p, err := h.store.GetProduct(ctx, id)
	if err != nil {
		writeError(c, "GetProduct", err)
		return
	}
	price, err := h.store.LatestPrice(ctx, id)
	if err != nil {
		writeError(c, "GetProduct", err)
		return
	}
	c.JSON(http.StatusOK, productView{Product: p, CurrentPrice: price})
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.store.DeleteProduct(ctx, id); err != nil {
		writeError(c, "DeleteProduct", err)
		return
	}
	logging.Info(ctx, "product deleted", "product_id", id)
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetPriceHistory(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	hist, err := h.store.History(c.Request.Context(), id)
	if err != nil {
		writeError(c, "GetPriceHistory", err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Handler) Tick(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	res, err := h.ticker.Tick(c.Request.Context(), id)
	if err != nil {
		writeError(c, "Tick", err)
		return
	}
	c.JSON(http.StatusOK, tickResponse{Price: res.Price, Timestamp: res.Timestamp.Format(timeLayout)})
}

func (h *Handler) Dashboard(c *gin.Context) {
	snap, err := h.dashboard.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, "Dashboard", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

const timeLayout = time.RFC3339

func productID(c *gin.Context) (products.ProductID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return products.ProductID(id), true
}

// writeError maps store errors to status codes. Conflicts also match
// ErrNotFound: the product is gone either way.
func writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, products.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, products.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		logging.Error(c.Request.Context(), op+" failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
