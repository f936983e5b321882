package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/ariefcatur/go-inventory-orders/internal/redisx"
)

// ProductsHandler serves the catalog. Edits here bypass the order
// coordinator.
type ProductsHandler struct {
	Catalog orders.Catalog
	Cache   redisx.Cache
	Logger  *zap.Logger
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Put("/products/{id}", h.updateProduct)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if b, found, err := h.Cache.Get(ctx, redisx.ProductKey(id)); err == nil && found {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}

	p, err := h.Catalog.GetProduct(ctx, id)
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	h.cacheProduct(ctx, p)
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	p, err := h.Catalog.CreateProduct(r.Context(), in)
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	p, err := h.Catalog.UpdateProduct(ctx, id, in)
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	if err := h.Cache.Del(ctx, redisx.ProductKey(id)); err != nil {
		h.logger().Warn("product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, p)
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (orders.ProductInput, bool) {
	var in orders.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return in, false
	}
	if err := in.Validate(); err != nil {
		writeError(w, zap.NewNop(), err)
		return in, false
	}
	return in, true
}

func (h *ProductsHandler) cacheProduct(ctx context.Context, p orders.Product) {
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := h.Cache.Set(ctx, redisx.ProductKey(p.ID), b, redisx.TTLProductCache); err != nil {
		h.logger().Warn("product cache write failed", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}

func (h *ProductsHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
