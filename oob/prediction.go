// Package oob は木の本数ごとの out-of-bag 予測を累積的に集約する。
//
// サンプル i・ステップ s の集約値は、先頭 s 本のうち i が OOB だった木の予測の平均
// （分類では各クラスの得票率）になる。OOB の木が1本もない場合の値は NaN で、
// 補完せずにそのまま評価指標へ渡される。
package oob

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
)

// Prediction はあるステップでの全サンプルの集約予測。生成後は変更されない。
type Prediction struct {
	Task model.TaskType
	// Step は使用したツリー数（1始まり）
	Step int
	// Classes は Probs の列に対応するクラスラベル（分類のみ）
	Classes []string
	// Values は回帰の OOB 平均 [n]（分類では nil）
	Values *mat.VecDense
	// Probs は分類の OOB 得票率 [n×K]（回帰では nil）
	Probs *mat.Dense
	// Counts はサンプルごとの OOB ツリー数
	Counts []int
}

// Len はサンプル数を返す
func (p *Prediction) Len() int {
	return len(p.Counts)
}

// Defined はサンプル i の集約値が定義されているかを返す
func (p *Prediction) Defined(i int) bool {
	return p.Counts[i] > 0
}

// Undefined は集約値が NaN のサンプル数を返す
func (p *Prediction) Undefined() int {
	n := 0
	for _, c := range p.Counts {
		if c == 0 {
			n++
		}
	}
	return n
}

// Response は分類では得票率が最大のクラス番号、回帰では予測値を返す。
// 未定義のサンプルは NaN。同率の場合は番号の小さいクラスを選ぶ。
func (p *Prediction) Response() *mat.VecDense {
	if p.Values != nil {
		return p.Values
	}
	n, k := p.Probs.Dims()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if !p.Defined(i) {
			out.SetVec(i, math.NaN())
			continue
		}
		best := 0
		for j := 1; j < k; j++ {
			if p.Probs.At(i, j) > p.Probs.At(i, best) {
				best = j
			}
		}
		out.SetVec(i, float64(best))
	}
	return out
}
