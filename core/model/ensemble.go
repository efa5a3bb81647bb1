package model

// Ensemble は学習済みのバギング木アンサンブルの共通インターフェース。
// 呼び出し側が所有し、このモジュールは決して変更しない。
type Ensemble interface {
	// Kind はアンサンブルの実装名を返す（ログとエラーメッセージ用）
	Kind() string
	// NumTrees はツリー数 T を返す
	NumTrees() int
	// TaskType はアンサンブルが学習したタスクの種類を返す
	TaskType() TaskType
	// InbagCounts はツリーごと・サンプルごとのin-bag回数を [T][n] で返す。
	// 0 はそのツリーでOOBだったことを意味する。学習時に保持されていなければ nil。
	InbagCounts() [][]int
}

// ClassificationEnsemble は分類アンサンブル
type ClassificationEnsemble interface {
	Ensemble
	// ClassLabels は順序付きのクラスラベル（K個）を返す
	ClassLabels() []string
	// TreeVotes は全ツリーの予測ラベルを [T][n] で返す
	TreeVotes() [][]string
}

// RegressionEnsemble は回帰アンサンブル
type RegressionEnsemble interface {
	Ensemble
	// TreeValues は全ツリーの予測値を [T][n] で返す
	TreeValues() [][]float64
}
