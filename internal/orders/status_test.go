package orders

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"Pending", StatusPending, true},
		{"shipped", StatusShipped, true},
		{"  DELIVERED ", StatusDelivered, true},
		{"Cancelled", StatusCancelled, true},
		{"Canceled", "", false},
		{"", "", false},
		{"Lost", "", false},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("ParseStatus(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.ok && !errors.Is(err, ErrValidation) {
			t.Errorf("ParseStatus(%q) err = %v, want validation error", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Errorf("%s not valid", s)
		}
	}
	if Status("pending").Valid() {
		t.Error("non-canonical name reported valid")
	}
}

func TestStatusUnmarshalJSON(t *testing.T) {
	var v struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal([]byte(`{"status":"processing"}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.Status != StatusProcessing {
		t.Errorf("status = %q", v.Status)
	}
	if err := json.Unmarshal([]byte(`{"status":"nope"}`), &v); err == nil {
		t.Error("expected error for unknown status")
	}
}
