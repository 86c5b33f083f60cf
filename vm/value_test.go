package vm

import (
	"math"
	"testing"
)

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{None, "None"},
		{NumberValue(8), "8"},
		{NumberValue(-3), "-3"},
		{NumberValue(2.5), "2.5"},
		{NumberValue(1.0 / 3.0), "0.3333333333333333"},
		{StringValue("こんにちは"), "こんにちは"},
		{ArrayValue(), "[]"},
		{ArrayValue(NumberValue(1), NumberValue(2)), "[1, 2]"},
		{ArrayValue(ArrayValue(StringValue("x"))), "[[x]]"},
	}

	for _, tc := range tests {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("String(%#v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestValueToNumber(t *testing.T) {
	tests := []struct {
		v    Value
		want float64
		ok   bool
	}{
		{NumberValue(4), 4, true},
		{StringValue("42"), 42, true},
		{StringValue("-1.5"), -1.5, true},
		{StringValue("abc"), 0, false},
		{StringValue(""), 0, false},
		{None, 0, false},
		{ArrayValue(NumberValue(1)), 0, false},
	}

	for _, tc := range tests {
		got, ok := tc.v.ToNumber()
		if ok != tc.ok || got != tc.want {
			t.Errorf("ToNumber(%v) = (%v, %v), want (%v, %v)", tc.v, got, ok, tc.want, tc.ok)
		}
	}
}

func TestValueCloneIsDeep(t *testing.T) {
	orig := ArrayValue(ArrayValue(NumberValue(1)))
	c := orig.Clone()
	c.Arr[0].Arr[0] = NumberValue(99)
	if orig.Arr[0].Arr[0].Num != 1 {
		t.Errorf("clone shares storage with original")
	}
}

func TestValueEqual(t *testing.T) {
	if !NumberValue(1).Equal(NumberValue(1)) {
		t.Error("1 != 1")
	}
	if NumberValue(1).Equal(StringValue("1")) {
		t.Error("number equals string")
	}
	if !ArrayValue(StringValue("a")).Equal(ArrayValue(StringValue("a"))) {
		t.Error("arrays with same elements differ")
	}
	if NumberValue(math.NaN()).Equal(NumberValue(math.NaN())) {
		t.Error("NaN equals NaN")
	}
}
