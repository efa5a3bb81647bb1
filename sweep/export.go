package sweep

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/oobcurve/curve"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

type jsonPoint struct {
	Value    float64             `json:"value"`
	Measures map[string]*float64 `json:"measures"`
	Curve    *curve.Curve        `json:"curve,omitempty"`
}

type jsonResult struct {
	Hyperparameter string      `json:"hyperparameter"`
	Measures       []string    `json:"measure_ids"`
	Points         []jsonPoint `json:"points"`
}

// MarshalJSON は結果を JSON にする。NaN は null
func (r *Result) MarshalJSON() ([]byte, error) {
	out := jsonResult{
		Hyperparameter: string(r.Hyperparameter),
		Measures:       r.Measures,
		Points:         make([]jsonPoint, len(r.Points)),
	}
	for i, p := range r.Points {
		values := curve.Nullable(p.Values)
		m := make(map[string]*float64, len(values))
		for j, id := range r.Measures {
			m[id] = values[j]
		}
		out.Points[i] = jsonPoint{Value: p.Value, Measures: m, Curve: p.Curve}
	}
	return json.Marshal(out)
}

// WriteJSON は結果を JSON で書き出す
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(r), "oobcurve: encode sweep result")
}

// WriteCSV は "<hyperparameter>,<measure...>" ヘッダ付きの CSV を書き出す
func (r *Result) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{string(r.Hyperparameter)}, r.Measures...)); err != nil {
		return errors.Wrap(err, "oobcurve: write csv header")
	}
	for _, p := range r.Points {
		rec := []string{strconv.FormatFloat(p.Value, 'g', -1, 64)}
		for _, v := range p.Values {
			rec = append(rec, curve.FormatValue(v))
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "oobcurve: write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "oobcurve: flush csv")
}

// SavePlot はハイパーパラメータ値に対する各指標を PNG に描く
func (r *Result) SavePlot(path string) error {
	p := plot.New()
	p.Title.Text = "OOB performance by " + string(r.Hyperparameter)
	p.X.Label.Text = string(r.Hyperparameter)
	p.Y.Label.Text = "Performance"
	p.Legend.Top = true

	xs := make([]float64, len(r.Points))
	for i, pt := range r.Points {
		xs[i] = pt.Value
	}
	for j, id := range r.Measures {
		ys := make([]float64, len(r.Points))
		for i, pt := range r.Points {
			ys[i] = pt.Values[j]
		}
		if err := curve.AddSeries(p, id, j, xs, ys); err != nil {
			return err
		}
	}
	return errors.Wrapf(p.Save(8*vg.Inch, 4*vg.Inch, path), "oobcurve: save plot %s", path)
}

// Save は拡張子（.csv / .json / .png）に応じた形式で結果を保存する
func (r *Result) Save(path string) error {
	var write func(io.Writer) error
	switch filepath.Ext(path) {
	case ".png":
		return r.SavePlot(path)
	case ".csv":
		write = r.WriteCSV
	case ".json":
		write = r.WriteJSON
	default:
		return errors.NewValidationError("output", "unsupported file extension (want .csv, .json or .png)", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "oobcurve: create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "oobcurve: close %s", path)
}
