package ensemble

import (
	"github.com/YuminosukeSato/oobcurve/core/model"
)

// Classification はメモリ上に保持された分類アンサンブル。
// 外部学習器のダンプ読み込みやテストで使う。
type Classification struct {
	Name    string
	Classes []string
	Inbag   [][]int    // [T][n]
	Votes   [][]string // [T][n]
}

var _ model.ClassificationEnsemble = (*Classification)(nil)

// NewClassification は分類アンサンブルを作成する
func NewClassification(classes []string, inbag [][]int, votes [][]string) *Classification {
	return &Classification{Name: "classification", Classes: classes, Inbag: inbag, Votes: votes}
}

func (c *Classification) Kind() string             { return c.Name }
func (c *Classification) NumTrees() int            { return len(c.Votes) }
func (c *Classification) TaskType() model.TaskType { return model.Classification }
func (c *Classification) InbagCounts() [][]int     { return c.Inbag }
func (c *Classification) ClassLabels() []string    { return c.Classes }
func (c *Classification) TreeVotes() [][]string    { return c.Votes }

// Regression はメモリ上に保持された回帰アンサンブル
type Regression struct {
	Name   string
	Inbag  [][]int     // [T][n]
	Values [][]float64 // [T][n]
}

var _ model.RegressionEnsemble = (*Regression)(nil)

// NewRegression は回帰アンサンブルを作成する
func NewRegression(inbag [][]int, values [][]float64) *Regression {
	return &Regression{Name: "regression", Inbag: inbag, Values: values}
}

func (r *Regression) Kind() string             { return r.Name }
func (r *Regression) NumTrees() int            { return len(r.Values) }
func (r *Regression) TaskType() model.TaskType { return model.Regression }
func (r *Regression) InbagCounts() [][]int     { return r.Inbag }
func (r *Regression) TreeValues() [][]float64  { return r.Values }

// Transpose は [n][T] の表を [T][n] に並べ替える。
// sample_major レイアウトのダンプを読み込むときに使う。
func Transpose[T any](rows [][]T) [][]T {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]T, len(rows[0]))
	for t := range out {
		out[t] = make([]T, len(rows))
		for i := range rows {
			out[t][i] = rows[i][t]
		}
	}
	return out
}
