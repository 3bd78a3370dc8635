package domain

import (
	"errors"
	"math"
	"testing"
)

func TestOrderTotalExactSum(t *testing.T) {
	items := []OrderItem{
		{ProductID: "p1", UnitPrice: 1000, Quantity: 2},
		{ProductID: "p2", UnitPrice: 500, Quantity: 1},
	}
	total, err := OrderTotal(items)
	if err != nil {
		t.Fatalf("OrderTotal: %v", err)
	}
	if total != 2500 {
		t.Fatalf("expected 2500, got %d", total)
	}
}

func TestOrderTotalDetectsOverflow(t *testing.T) {
	items := []OrderItem{{ProductID: "p1", UnitPrice: math.MaxInt64 / 2, Quantity: 3}}
	if _, err := OrderTotal(items); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]int64{
		"10":    1000,
		"10.5":  1050,
		"10.05": 1005,
		"0":     0,
		"0.99":  99,
		"-3.1":  -310,
	}
	for raw, want := range cases {
		got, err := ParseAmount(raw)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseAmount(%q) = %d, want %d", raw, got, want)
		}
	}
}

func TestParseAmountRejectsBadInput(t *testing.T) {
	for _, raw := range []string{"", "1.234", "abc", "1e3", ".5", "5.", "1,5"} {
		if _, err := ParseAmount(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseAmountDetectsOverflow(t *testing.T) {
	for _, raw := range []string{"92233720368547758.99", "92233720368547758.08", "99999999999999999999"} {
		if got, err := ParseAmount(raw); !errors.Is(err, ErrAmountOverflow) {
			t.Fatalf("ParseAmount(%q) = %d, %v; want overflow", raw, got, err)
		}
	}
	if got, err := ParseAmount("92233720368547758.07"); err != nil || got != math.MaxInt64 {
		t.Fatalf("ParseAmount at the limit = %d, %v", got, err)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		2500: "25",
		1050: "10.5",
		1005: "10.05",
		99:   "0.99",
		-310: "-3.1",
	}
	for minor, want := range cases {
		if got := FormatAmount(minor); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", minor, got, want)
		}
	}
}
