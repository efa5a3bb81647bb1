package errors

import (
	"fmt"
	"math"
)

// IsUndefined は値が未定義（NaN）かどうかを返す。
// OOB集約で分母が0になったサンプルはNaNで表現される。
func IsUndefined(v float64) bool {
	return math.IsNaN(v)
}

// CountUndefined はスライス中のNaNの数を返す。
func CountUndefined(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// CheckFinite は値にNaNまたはInfが含まれていればValueErrorを返す。
// 正解ベクトルやグリッド値など、未定義値を許さない入力の検証に使う。
func CheckFinite(op string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValueError(op, fmt.Sprintf("non-finite value %v at index %d", v, i))
		}
	}
	return nil
}
