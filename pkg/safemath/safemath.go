package safemath

import (
	"fmt"
	"math"
)

// ErrOverflow 表示算术溢出。
// 交易相关的数值计算必须 fail closed：溢出时返回错误，绝不静默饱和。
var ErrOverflow = fmt.Errorf("safemath: integer overflow")

// AddI64 带溢出检查的 int64 加法
func AddI64(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, ErrOverflow
	}
	return s, nil
}

// SubI64 带溢出检查的 int64 减法
func SubI64(a, b int64) (int64, error) {
	d := a - b
	if (b < 0 && d < a) || (b > 0 && d > a) {
		return 0, ErrOverflow
	}
	return d, nil
}

// MulI64 带溢出检查的 int64 乘法
func MulI64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	// MinInt64 * -1 回绕成自身，商检查查不出来，单独挡掉
	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		return 0, ErrOverflow
	}
	p := a * b
	if p/b != a {
		return 0, ErrOverflow
	}
	return p, nil
}

// DivI64 带零除检查的 int64 除法（向零截断）
func DivI64(a, b int64) (int64, error) {
	if b == 0 {
		return 0, fmt.Errorf("safemath: division by zero")
	}
	if a == math.MinInt64 && b == -1 {
		return 0, ErrOverflow
	}
	return a / b, nil
}

// AddU64 带溢出检查的 uint64 加法
func AddU64(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, ErrOverflow
	}
	return s, nil
}

// SubU64 带下溢检查的 uint64 减法
func SubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// MulU64 带溢出检查的 uint64 乘法
func MulU64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a {
		return 0, ErrOverflow
	}
	return p, nil
}

// I64ToU64 int64 转 uint64，负数视为非法
func I64ToU64(v int64) (uint64, error) {
	if v < 0 {
		return 0, ErrOverflow
	}
	return uint64(v), nil
}

// U64ToI64 uint64 转 int64，超出 int64 范围视为非法
func U64ToI64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, ErrOverflow
	}
	return int64(v), nil
}

// AbsI64 取绝对值并转为 uint64（MinInt64 也能正确处理）
func AbsI64(v int64) uint64 {
	if v >= 0 {
		return uint64(v)
	}
	return uint64(-(v + 1)) + 1
}
