package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
)

func TestWriteErrorStatus(t *testing.T) {
	tests := []struct {
		err       error
		code      int
		retryable bool
	}{
		{&orders.ValidationError{Problems: []string{"x"}}, http.StatusBadRequest, false},
		{&orders.ProductNotFoundError{IDs: []int64{4}}, http.StatusUnprocessableEntity, false},
		{&orders.FeasibilityError{
			Missing:   &orders.ProductNotFoundError{IDs: []int64{4}},
			Shortages: &orders.InsufficientStockError{Shortages: []orders.Shortage{{ProductID: 1, Requested: 2, Available: 1}}},
		}, http.StatusUnprocessableEntity, false},
		{&orders.FeasibilityError{
			Shortages: &orders.InsufficientStockError{Shortages: []orders.Shortage{{ProductID: 1, Requested: 2, Available: 1}}},
		}, http.StatusConflict, false},
		{&orders.OrderNotFoundError{ID: 3}, http.StatusNotFound, false},
		{fmt.Errorf("commit: %w", orders.ErrConcurrencyConflict), http.StatusConflict, true},
		{context.Canceled, http.StatusRequestTimeout, false},
		{errors.New("connection refused"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, zaptest.NewLogger(t), tt.err)
		if rec.Code != tt.code {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.code)
		}
		var body errorResp
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Retryable != tt.retryable {
			t.Errorf("%v: retryable = %v", tt.err, body.Retryable)
		}
	}
}

func TestWriteErrorHidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zaptest.NewLogger(t), errors.New("dial tcp 10.0.0.1:5432"))
	var body errorResp
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "internal error" {
		t.Errorf("error = %q", body.Error)
	}
}
