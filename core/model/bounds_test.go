package model

import "testing"

func TestBoundsValidate(t *testing.T) {
	if err := (PowerBounds{Lower: -5, Upper: 5}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (PowerBounds{Lower: 5, Upper: -5}).Validate(); err == nil {
		t.Fatal("expected error for inverted bounds")
	}
}

func TestBoundsIntersect(t *testing.T) {
	cases := []struct {
		name string
		a, b PowerBounds
		want PowerBounds
	}{
		{"overlap", PowerBounds{-10, 10}, PowerBounds{-5, 20}, PowerBounds{-5, 10}},
		{"contained", PowerBounds{-10, 10}, PowerBounds{-2, 2}, PowerBounds{-2, 2}},
		{"disjoint above", PowerBounds{-10, 0}, PowerBounds{5, 8}, PowerBounds{0, 0}},
		{"disjoint below", PowerBounds{0, 10}, PowerBounds{-8, -5}, PowerBounds{0, 0}},
	}
	for _, c := range cases {
		if got := c.a.Intersect(c.b); got != c.want {
			t.Errorf("%s: got %+v, want %+v", c.name, got, c.want)
		}
	}
}

func TestBoundsClamp(t *testing.T) {
	b := PowerBounds{Lower: -3, Upper: 7}
	if got := b.Clamp(10); got != 7 {
		t.Errorf("clamp above: got %f", got)
	}
	if got := b.Clamp(-10); got != -3 {
		t.Errorf("clamp below: got %f", got)
	}
	if got := b.Clamp(2); got != 2 {
		t.Errorf("clamp inside: got %f", got)
	}
}

func TestBoundsShiftAdd(t *testing.T) {
	b := PowerBounds{Lower: -2, Upper: 4}
	if got := b.Shift(3); got != (PowerBounds{1, 7}) {
		t.Errorf("shift: got %+v", got)
	}
	if got := b.Add(PowerBounds{-1, 1}); got != (PowerBounds{-3, 5}) {
		t.Errorf("add: got %+v", got)
	}
}
