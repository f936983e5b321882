package orders

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

// ParseStatus is case-insensitive and ignores surrounding whitespace.
// It never panics; unknown names yield a validation error.
func ParseStatus(s string) (Status, error) {
	t := strings.TrimSpace(s)
	for _, st := range Statuses {
		if strings.EqualFold(t, string(st)) {
			return st, nil
		}
	}
	return "", &ValidationError{Problems: []string{fmt.Sprintf("unknown status %q", s)}}
}

// Valid reports whether s is one of the canonical status names.
func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
