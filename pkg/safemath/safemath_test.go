package safemath

import (
	"math"
	"testing"
)

func TestAddI64(t *testing.T) {
	if v, err := AddI64(1, -2); err != nil || v != -1 {
		t.Errorf("got %d, %v", v, err)
	}
	if _, err := AddI64(math.MaxInt64, 1); err == nil {
		t.Error("MaxInt64+1 should overflow")
	}
	if _, err := AddI64(math.MinInt64, -1); err == nil {
		t.Error("MinInt64-1 should overflow")
	}
}

func TestSubI64(t *testing.T) {
	if v, err := SubI64(1, 2); err != nil || v != -1 {
		t.Errorf("got %d, %v", v, err)
	}
	if _, err := SubI64(math.MinInt64, 1); err == nil {
		t.Error("MinInt64-1 should overflow")
	}
	if _, err := SubI64(math.MaxInt64, -1); err == nil {
		t.Error("MaxInt64+1 should overflow")
	}
}

func TestMulI64(t *testing.T) {
	if v, err := MulI64(-3, 4); err != nil || v != -12 {
		t.Errorf("got %d, %v", v, err)
	}
	if _, err := MulI64(math.MaxInt64, 2); err == nil {
		t.Error("MaxInt64*2 should overflow")
	}
	// MinInt64 * -1 无法在 int64 内表示
	if _, err := MulI64(math.MinInt64, -1); err == nil {
		t.Error("MinInt64*-1 should overflow")
	}
	if _, err := MulI64(-1, math.MinInt64); err == nil {
		t.Error("-1*MinInt64 should overflow")
	}
	if v, err := MulI64(math.MinInt64, 1); err != nil || v != math.MinInt64 {
		t.Errorf("got %d, %v", v, err)
	}
}

func TestDivI64(t *testing.T) {
	// 向零截断
	if v, err := DivI64(-7, 2); err != nil || v != -3 {
		t.Errorf("got %d, %v", v, err)
	}
	if _, err := DivI64(1, 0); err == nil {
		t.Error("division by zero should fail")
	}
	if _, err := DivI64(math.MinInt64, -1); err == nil {
		t.Error("MinInt64/-1 should overflow")
	}
}

func TestU64Arithmetic(t *testing.T) {
	if _, err := AddU64(math.MaxUint64, 1); err == nil {
		t.Error("AddU64 should overflow")
	}
	if _, err := SubU64(1, 2); err == nil {
		t.Error("SubU64 should underflow")
	}
	if _, err := MulU64(math.MaxUint64, 2); err == nil {
		t.Error("MulU64 should overflow")
	}
	if v, err := MulU64(0, math.MaxUint64); err != nil || v != 0 {
		t.Errorf("got %d, %v", v, err)
	}
}

func TestConversions(t *testing.T) {
	if _, err := I64ToU64(-1); err == nil {
		t.Error("negative should be rejected")
	}
	if _, err := U64ToI64(math.MaxInt64 + 1); err == nil {
		t.Error("out of range should be rejected")
	}
	if v, err := U64ToI64(math.MaxInt64); err != nil || v != math.MaxInt64 {
		t.Errorf("got %d, %v", v, err)
	}
}

func TestAbsI64(t *testing.T) {
	if AbsI64(-5) != 5 || AbsI64(5) != 5 {
		t.Error("abs of small values")
	}
	if AbsI64(math.MinInt64) != 1<<63 {
		t.Errorf("abs(MinInt64): got %d", AbsI64(math.MinInt64))
	}
}
