package curve

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sbinet/npyio"

	"github.com/YuminosukeSato/oobcurve/pkg/errors"
)

// NA は CSV 出力で未定義値を表す文字列
const NA = "NA"

// FormatValue は CSV 用に値を文字列化する。NaN は NA
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return NA
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV は "trees,<measure...>" ヘッダ付きの CSV を書き出す
func (c *Curve) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"trees"}, c.Measures...)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "oobcurve: write csv header")
	}
	for s, row := range c.Rows {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, strconv.Itoa(s+1))
		for _, v := range row {
			rec = append(rec, FormatValue(v))
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "oobcurve: write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "oobcurve: flush csv")
}

// jsonCurve は JSON 出力の形。NaN は null になる
type jsonCurve struct {
	Task     string    `json:"task"`
	Measures []string  `json:"measures"`
	Rows     []jsonRow `json:"rows"`
}

type jsonRow struct {
	Trees  int        `json:"trees"`
	Values []*float64 `json:"values"`
}

// Nullable は NaN を nil に変換する
func Nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) {
			v := values[i]
			out[i] = &v
		}
	}
	return out
}

// MarshalJSON は曲線を JSON にする。NaN は null として出力する
func (c *Curve) MarshalJSON() ([]byte, error) {
	jc := jsonCurve{
		Task:     c.Task.String(),
		Measures: c.Measures,
		Rows:     make([]jsonRow, len(c.Rows)),
	}
	for s, row := range c.Rows {
		jc.Rows[s] = jsonRow{Trees: s + 1, Values: Nullable(row)}
	}
	return json.Marshal(jc)
}

// WriteJSON は曲線を JSON で書き出す
func (c *Curve) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(c), "oobcurve: encode curve")
}

// WriteNPY は曲線を [T×M] の float64 配列として書き出す
func (c *Curve) WriteNPY(w io.Writer) error {
	return errors.Wrap(npyio.Write(w, c.Matrix()), "oobcurve: write curve npy")
}

// Save は拡張子（.csv / .json / .npy / .png）に応じた形式で曲線をファイルに保存する
func (c *Curve) Save(path string) error {
	ext := filepath.Ext(path)
	if ext == ".png" {
		return c.SavePlot(path, "OOB learning curve")
	}

	var write func(io.Writer) error
	switch ext {
	case ".csv":
		write = c.WriteCSV
	case ".json":
		write = c.WriteJSON
	case ".npy":
		write = c.WriteNPY
	default:
		return errors.NewValidationError("output", "unsupported file extension (want .csv, .json, .npy or .png)", path)
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
