// Package measure は OOB 集約予測を評価する指標の枠組みを提供する。
//
// 指標は文字列 ID で識別され、明示的な Registry から解決される。
// グローバルな登録状態は持たない。
package measure

import (
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/oob"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// Func は集約予測と正解から指標値を計算する。
// truth は回帰では正解値、分類では p.Classes に対するクラス番号。
// 入力を変更してはならない。
type Func func(p *oob.Prediction, truth *mat.VecDense) (float64, error)

// Measure は ID 付きの評価指標
type Measure struct {
	ID       string
	Name     string
	Tasks    []model.TaskType
	Minimize bool
	Fn       Func
}

// Supports は指標がタスク種別に対応しているかを返す
func (m Measure) Supports(t model.TaskType) bool {
	for _, task := range m.Tasks {
		if task == t {
			return true
		}
	}
	return false
}

// Registry は ID から指標への対応表。並行に読み書きしてよい。
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Measure
	order []string
}

// NewRegistry は空の Registry を作成する
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Measure)}
}

// Register は指標を追加する。ID が空・関数が nil・ID が重複している場合はエラー
func (r *Registry) Register(m Measure) error {
	if m.ID == "" {
		return errors.NewValidationError("id", "measure id must not be empty", m.ID)
	}
	if m.Fn == nil {
		return errors.NewValidationError("fn", "measure function must not be nil", m.ID)
	}
	if len(m.Tasks) == 0 {
		return errors.NewValidationError("tasks", "measure must support at least one task type", m.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; ok {
		return errors.NewValidationError("id", "measure already registered", m.ID)
	}
	r.byID[m.ID] = m
	r.order = append(r.order, m.ID)
	return nil
}

// Get は ID に対応する指標を返す
func (r *Registry) Get(id string) (Measure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// IDs は登録順の ID 一覧を返す
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ForTask はタスク種別に対応する指標を登録順に返す
func (r *Registry) ForTask(t model.TaskType) []Measure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Measure
	for _, id := range r.order {
		if m := r.byID[id]; m.Supports(t) {
			out = append(out, m)
		}
	}
	return out
}

// Resolve は要求された ID を指標に解決する。順序は要求順。
// ids が空ならタスクの既定指標を使う。未登録の ID は ValidationError、
// タスクに対応しない指標は MeasureEvaluationError になる。
func (r *Registry) Resolve(t model.TaskType, ids []string) ([]Measure, error) {
	if !t.Valid() {
		return nil, errors.NewUnsupportedTaskTypeError(t.String())
	}
	if len(ids) == 0 {
		ids = DefaultIDs(t)
	}

	out := make([]Measure, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, errors.NewValidationError("measures", "measure requested twice", id)
		}
		seen[id] = true

		m, ok := r.Get(id)
		if !ok {
			known := r.IDs()
			sort.Strings(known)
			return nil, errors.NewValidationError("measures", "unknown measure (known: "+strings.Join(known, ", ")+")", id)
		}
		if !m.Supports(t) {
			return nil, errors.NewMeasureEvaluationError(id, 0,
				errors.Newf("measure does not support %s tasks", t))
		}
		out = append(out, m)
	}
	return out, nil
}

// DefaultIDs はタスクの既定指標 ID を返す
func DefaultIDs(t model.TaskType) []string {
	if t == model.Classification {
		return []string{MMCE}
	}
	return []string{MSE}
}

// IDsOf は指標の ID を順に返す
func IDsOf(measures []Measure) []string {
	ids := make([]string, len(measures))
	for i, m := range measures {
		ids[i] = m.ID
	}
	return ids
}
