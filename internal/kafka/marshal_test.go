package kafka

import (
	"encoding/json"
	"strings"
	"testing"
)

type stockLine struct {
	ProductID int64 `json:"product_id"`
	Delta     int   `json:"delta"`
}

func TestDecodeRoundTripsMustMarshal(t *testing.T) {
	got, err := Decode[stockLine](MustMarshal(stockLine{ProductID: 4, Delta: -2}))
	if err != nil {
		t.Fatal(err)
	}
	if got != (stockLine{ProductID: 4, Delta: -2}) {
		t.Errorf("got %+v", got)
	}
}

func TestUnwrapPayloadReportsType(t *testing.T) {
	_, err := UnwrapPayload[stockLine](json.RawMessage(`{"product_id":"x"}`))
	if err == nil || !strings.Contains(err.Error(), "kafka.stockLine") {
		t.Fatalf("err = %v, want the target type named", err)
	}
}

func TestMustMarshalPanicsOnUnencodable(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("no panic for a channel value")
		}
	}()
	MustMarshal(make(chan int))
}
