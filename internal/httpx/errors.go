package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
)

type errorResp struct {
	Error     string   `json:"error"`
	Problems  []string `json:"problems,omitempty"`
	Missing   []int64  `json:"missing_products,omitempty"`
	Shortages any      `json:"shortages,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the order error taxonomy to a status code. Anything
// outside the taxonomy is logged and reported as 500 without its message.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	resp := errorResp{Error: err.Error()}
	code := http.StatusInternalServerError

	var verr *orders.ValidationError
	var missing *orders.ProductNotFoundError
	var short *orders.InsufficientStockError
	switch {
	case errors.As(err, &verr):
		code = http.StatusBadRequest
		resp.Problems = verr.Problems
	case errors.Is(err, orders.ErrProductNotFound):
		code = http.StatusUnprocessableEntity
		if errors.As(err, &missing) {
			resp.Missing = missing.IDs
		}
		if errors.As(err, &short) {
			resp.Shortages = short.Shortages
		}
	case errors.As(err, &short):
		code = http.StatusConflict
		resp.Shortages = short.Shortages
	case errors.Is(err, orders.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrConcurrencyConflict):
		code = http.StatusConflict
		resp.Retryable = true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusRequestTimeout
		resp.Error = "request cancelled"
	default:
		logger.Error("request failed", zap.Error(err))
		resp = errorResp{Error: "internal error"}
	}
	writeJSON(w, code, resp)
}
