package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// logLossEps は log(0) を避けるための確率のクリップ幅
const logLossEps = 1e-15

// hasNaN はベクトルに NaN が含まれるかを返す
func hasNaN(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		if math.IsNaN(v.AtVec(i)) {
			return true
		}
	}
	return false
}

// checkProbs は正解のクラス番号と [n×K] 確率行列の形を確認する
func checkProbs(op string, yTrue *mat.VecDense, probs mat.Matrix) (n, k int, err error) {
	if yTrue == nil || probs == nil {
		return 0, 0, errors.NewValueError(op, "nil input")
	}
	n = yTrue.Len()
	if n == 0 {
		return 0, 0, errors.NewValueError(op, "empty vector")
	}
	r, k := probs.Dims()
	if r != n {
		return 0, 0, errors.NewDimensionError(op, n, r, 0)
	}
	if k < 2 {
		return 0, 0, errors.NewDimensionError(op, 2, k, 2)
	}
	for i := 0; i < n; i++ {
		c := yTrue.AtVec(i)
		if c != math.Trunc(c) || c < 0 || int(c) >= k {
			return 0, 0, errors.NewValueError(op, fmt.Sprintf("class index %v at %d outside [0, %d)", c, i, k))
		}
	}
	return n, k, nil
}

// MisclassificationRate は誤分類率を計算する。yPred はクラス番号
func MisclassificationRate(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MisclassificationRate", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if hasNaN(yPred) {
		return math.NaN(), nil
	}

	wrong := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) != yPred.AtVec(i) {
			wrong++
		}
	}
	return float64(wrong) / float64(n), nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	mmce, err := MisclassificationRate(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - mmce, nil
}

// AUC は二値分類の ROC 曲線下面積を Mann-Whitney の U 統計量から計算する。
// yTrue は 0/1、同点のスコアは 0.5 として数える。
// 片方のクラスしかない場合は定義できないため NaN を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		if v := yTrue.AtVec(i); v != 0 && v != 1 {
			return 0, errors.NewValueError("AUC", fmt.Sprintf("labels must be 0 or 1, got %v at %d", v, i))
		}
	}
	if hasNaN(yScore) {
		return math.NaN(), nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b]) })

	// 同点グループに平均順位を与えて正例の順位和を求める
	var rankSum float64
	var pos int
	for start := 0; start < n; {
		end := start
		for end < n && yScore.AtVec(idx[end]) == yScore.AtVec(idx[start]) {
			end++
		}
		rank := float64(start+end+1) / 2
		for j := start; j < end; j++ {
			if yTrue.AtVec(idx[j]) == 1 {
				rankSum += rank
				pos++
			}
		}
		start = end
	}

	neg := n - pos
	if pos == 0 || neg == 0 {
		return math.NaN(), nil
	}
	u := rankSum - float64(pos*(pos+1))/2
	return u / float64(pos*neg), nil
}

// MulticlassAUC はクラスごとの one-vs-rest AUC の単純平均を計算する。
// 2クラスでは2番目のクラスを正例とした AUC に一致する。
// 正解に現れないクラスは平均から除く。
func MulticlassAUC(yTrue *mat.VecDense, probs mat.Matrix) (float64, error) {
	n, k, err := checkProbs("MulticlassAUC", yTrue, probs)
	if err != nil {
		return 0, err
	}
	if k == 2 {
		return AUC(indicator(yTrue, 1), mat.NewVecDense(n, mat.Col(nil, 1, probs)))
	}

	var sum float64
	var used int
	for j := 0; j < k; j++ {
		col := mat.NewVecDense(n, mat.Col(nil, j, probs))
		if hasNaN(col) {
			return math.NaN(), nil
		}
		auc, err := AUC(indicator(yTrue, j), col)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(auc) {
			continue
		}
		sum += auc
		used++
	}
	if used == 0 {
		return math.NaN(), nil
	}
	return sum / float64(used), nil
}

// BrierScore は二値分類の Brier スコア mean((p - y)²) を計算する。yTrue は 0/1
func BrierScore(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BrierScore", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := yProb.AtVec(i) - yTrue.AtVec(i)
		sum += d * d
	}
	return sum / float64(n), nil
}

// MulticlassBrier は多クラス Brier スコア mean(Σ_k (p_k - 1[y=k])²) を計算する
func MulticlassBrier(yTrue *mat.VecDense, probs mat.Matrix) (float64, error) {
	n, k, err := checkProbs("MulticlassBrier", yTrue, probs)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		c := int(yTrue.AtVec(i))
		for j := 0; j < k; j++ {
			d := probs.At(i, j)
			if j == c {
				d -= 1
			}
			sum += d * d
		}
	}
	return sum / float64(n), nil
}

// LogLoss は多クラス対数損失 -mean(log p_y) を計算する。確率は [eps, 1-eps] にクリップする
func LogLoss(yTrue *mat.VecDense, probs mat.Matrix) (float64, error) {
	n, _, err := checkProbs("LogLoss", yTrue, probs)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		p := probs.At(i, int(yTrue.AtVec(i)))
		if math.IsNaN(p) {
			return math.NaN(), nil
		}
		p = math.Max(logLossEps, math.Min(1-logLossEps, p))
		sum -= math.Log(p)
	}
	return sum / float64(n), nil
}

// indicator はクラス番号 c に一致するサンプルを 1、それ以外を 0 とするベクトルを返す
func indicator(yTrue *mat.VecDense, c int) *mat.VecDense {
	n := yTrue.Len()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if int(yTrue.AtVec(i)) == c {
			out.SetVec(i, 1)
		}
	}
	return out
}
