package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"1.٣", 0, false},
		{"1.５", 0, false},
		{"٣", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "₹0.00",
		5:      "₹0.05",
		123456: "₹1234.56",
		-250:   "-₹2.50",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("%d: expected %q, got %q", cents, want, got)
		}
	}
}

func TestMoneyJSONUsesDecimalAmount(t *testing.T) {
	var e Expense
	if err := json.Unmarshal([]byte(`{"id":3,"amount":12.5,"description":"Tea","date":"2025-03-04","category":{"id":1,"name":"Food"}}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Amount.Cents != 1250 {
		t.Fatalf("expected 1250 cents, got %d", e.Amount.Cents)
	}
	if e.Date.String() != "2025-03-04" || e.CategoryName() != "Food" || e.UserName() != "" {
		t.Fatalf("unexpected expense %+v", e)
	}

	b, err := json.Marshal(Expense{Amount: Money{Cents: 999}, Description: "x", Date: NewDate(2025, 1, 2), Category: &Category{ID: 7}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"amount":9.99,"description":"x","date":"2025-01-02","category":{"id":7,"name":""}}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}
