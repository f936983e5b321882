package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/ariefcatur/go-inventory-orders/internal/redisx"
)

// idemPending marks an idempotency key whose create is still running.
const idemPending = "pending"

// fillPrefix marks an order key claimed by a GET that is reading the store.
var fillPrefix = []byte("\x00fill:")

const fillTTL = 5 * time.Second

// OrderService is satisfied by *orders.Service.
type OrderService interface {
	Create(ctx context.Context, in orders.CreateInput) (orders.Order, error)
	Update(ctx context.Context, in orders.UpdateInput) (orders.Order, error)
	Delete(ctx context.Context, orderID int64) error
	Get(ctx context.Context, orderID int64) (orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
}

type OrdersHandler struct {
	Service  OrderService
	Cache    redisx.Cache
	OrderTTL time.Duration
	Logger   *zap.Logger
}

type orderReq struct {
	CustomerName    string             `json:"customer_name"`
	CustomerEmail   string             `json:"customer_email"`
	ShippingAddress string             `json:"shipping_address"`
	Status          string             `json:"status"`
	Items           []orders.ItemInput `json:"items"`
}

func (req orderReq) customer() orders.Customer {
	return orders.Customer{
		Name:            req.CustomerName,
		Email:           req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
	}
}

type orderResp struct {
	ID              int64           `json:"id"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	ShippingAddress string          `json:"shipping_address"`
	OrderDate       time.Time       `json:"order_date"`
	Status          orders.Status   `json:"status"`
	Items           []itemResp      `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Idempotent      bool            `json:"idempotent,omitempty"`
}

type itemResp struct {
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Product   *productRef     `json:"product,omitempty"`
}

// productRef is the catalog entry behind an order line. Stock is left out:
// other orders move it without touching this order's cache entry.
type productRef struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

func newOrderResp(o orders.Order) orderResp {
	resp := orderResp{
		ID:              o.ID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		ShippingAddress: o.ShippingAddress,
		OrderDate:       o.OrderDate,
		Status:          o.Status,
		Items:           make([]itemResp, 0, len(o.Items)),
		Total:           o.Total(),
	}
	for _, it := range o.Items {
		ir := itemResp{OrderID: it.OrderID, ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		if p := it.Product; p != nil {
			ir.Product = &productRef{ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price}
		}
		resp.Items = append(resp.Items, ir)
	}
	return resp
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}", h.updateOrder)
	r.Delete("/orders/{id}", h.deleteOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	ctx := r.Context()

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" {
		key := redisx.IdemOrderCreateKey(idemKey)
		first, err := h.Cache.SetNX(ctx, key, []byte(idemPending), redisx.TTLIdempotency)
		switch {
		case err != nil:
			// redis down: serve the request without the shortcut
			h.logger().Warn("idempotency check failed", zap.String("key", idemKey), zap.Error(err))
			idemKey = ""
		case !first:
			h.replayCreate(w, r, key)
			return
		}
	}

	order, err := h.Service.Create(ctx, orders.CreateInput{
		Customer: req.customer(),
		Status:   req.Status,
		Items:    req.Items,
	})
	if err != nil {
		if idemKey != "" {
			_ = h.Cache.Del(context.WithoutCancel(ctx), redisx.IdemOrderCreateKey(idemKey))
		}
		writeError(w, h.logger(), err)
		return
	}

	if idemKey != "" {
		id := []byte(strconv.FormatInt(order.ID, 10))
		if err := h.Cache.Set(ctx, redisx.IdemOrderCreateKey(idemKey), id, redisx.TTLIdempotency); err != nil {
			h.logger().Warn("idempotency store failed", zap.String("key", idemKey), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, newOrderResp(order))
}

func (h *OrdersHandler) replayCreate(w http.ResponseWriter, r *http.Request, key string) {
	ctx := r.Context()
	v, found, err := h.Cache.Get(ctx, key)
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	if !found || string(v) == idemPending {
		writeJSON(w, http.StatusConflict, errorResp{Error: "a request with this idempotency key is in progress", Retryable: true})
		return
	}
	id, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	order, err := h.Service.Get(ctx, id)
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	resp := newOrderResp(order)
	resp.Idempotent = true
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.List(r.Context())
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	out := make([]orderResp, 0, len(list))
	for _, o := range list {
		out = append(out, newOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// getOrder serves order:{id} from the cache when present. On a miss it
// claims the key with a fill marker before reading the store and only
// publishes the snapshot if the marker survived; a commit that invalidates
// the key in between wins.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	key := redisx.OrderKey(id)

	// 1) cache
	b, found, err := h.Cache.Get(ctx, key)
	if err == nil && found && !bytes.HasPrefix(b, fillPrefix) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}
	var marker []byte
	if err == nil && !found && h.OrderTTL > 0 {
		marker = append(append([]byte(nil), fillPrefix...), uuid.NewString()...)
		if claimed, err := h.Cache.SetNX(ctx, key, marker, fillTTL); err != nil || !claimed {
			marker = nil
		}
	}

	// 2) store
	order, err := h.Service.Get(ctx, id)
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	resp := newOrderResp(order)
	if marker != nil {
		h.fillOrder(ctx, key, marker, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req orderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	order, err := h.Service.Update(r.Context(), orders.UpdateInput{
		OrderID:  id,
		Customer: req.customer(),
		Status:   req.Status,
		Items:    req.Items,
	})
	if err != nil {
		writeError(w, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResp(order))
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) fillOrder(ctx context.Context, key string, marker []byte, resp orderResp) {
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if _, err := h.Cache.CompareAndSet(ctx, key, marker, b, h.OrderTTL); err != nil {
		h.logger().Warn("order cache write failed", zap.Int64("order_id", resp.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid id"})
		return 0, false
	}
	return id, true
}
