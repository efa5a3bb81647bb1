package curve

import (
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// Segments は NaN で区切られた連続区間ごとの点列を返す。
// 未定義のステップは線の切れ目になる。
func Segments(xs, ys []float64) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for i := range xs {
		if math.IsNaN(ys[i]) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: xs[i], Y: ys[i]})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// AddSeries は1系列を色 index で p に描き、凡例に name を加える
func AddSeries(p *plot.Plot, name string, index int, xs, ys []float64) error {
	first := true
	for _, seg := range Segments(xs, ys) {
		line, points, err := plotter.NewLinePoints(seg)
		if err != nil {
			return errors.Wrapf(err, "oobcurve: plot %s", name)
		}
		line.Color = plotutil.Color(index)
		line.Dashes = plotutil.Dashes(index)
		points.Color = plotutil.Color(index)
		points.Shape = plotutil.Shape(index)
		points.Radius = vg.Points(1.5)
		p.Add(line, points)
		if first {
			p.Legend.Add(name, line, points)
			first = false
		}
	}
	return nil
}

// SavePlot は各指標を1本の線として描いた PNG を保存する
func (c *Curve) SavePlot(path, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Number of trees"
	p.Y.Label.Text = "Performance"
	p.Legend.Top = true

	xs := make([]float64, len(c.Rows))
	for s := range xs {
		xs[s] = float64(s + 1)
	}
	defined := false
	for j, id := range c.Measures {
		col, _ := c.Column(id)
		if err := AddSeries(p, id, j, xs, col); err != nil {
			return err
		}
		defined = defined || len(Segments(xs, col)) > 0
	}
	if !defined {
		// 全ステップ未定義のときも軸だけは描く
		p.X.Min, p.X.Max = 1, float64(len(xs)+1)
		p.Y.Min, p.Y.Max = 0, 1
	}
	return errors.Wrapf(p.Save(8*vg.Inch, 4*vg.Inch, path), "oobcurve: save plot %s", path)
}
