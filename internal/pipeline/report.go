package pipeline

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/hotelres/metrics"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/sklearn/lightgbm"
)

// Report file names inside the report directory.
const (
	MetricsFile           = "metrics.json"
	FeatureImportanceFile = "feature_importance.png"
	ROCCurveFile          = "roc_curve.png"
)

// Score is a float64 that encodes NaN and ±Inf as JSON null.
type Score float64

// MarshalJSON implements json.Marshaler.
func (s Score) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// CandidateReport is one row of the search results.
type CandidateReport struct {
	Params     map[string]interface{} `json:"params"`
	FoldScores []Score                `json:"fold_scores"`
	Mean       Score                  `json:"mean_test_score"`
	Std        Score                  `json:"std_test_score"`
	Rank       int                    `json:"rank_test_score"`
	Error      string                 `json:"error,omitempty"`
}

// Report is the content of metrics.json.
type Report struct {
	RunID             string                 `json:"run_id"`
	CreatedAt         time.Time              `json:"created_at"`
	DurationMs        int64                  `json:"duration_ms"`
	Scoring           string                 `json:"scoring"`
	BestScore         Score                  `json:"best_score"`
	BestParams        map[string]interface{} `json:"best_params"`
	Metrics           map[string]float64     `json:"metrics"`
	Features          []string               `json:"features"`
	FeatureImportance map[string]float64     `json:"feature_importance"`
	Candidates        []CandidateReport      `json:"candidates"`
}

// NewReport summarizes a finished training run.
func NewReport(b *Bundle, search *lightgbm.RandomizedSearchCV, took time.Duration) *Report {
	r := &Report{
		RunID:      b.RunID,
		CreatedAt:  b.CreatedAt,
		DurationMs: took.Milliseconds(),
		Scoring:    search.Scoring,
		BestScore:  Score(search.BestScore),
		BestParams: search.BestParams,
		Metrics:    b.Metrics,
		Features:   b.FeatureNames,
	}
	if imp, err := b.Classifier.FeatureImportance("gain"); err == nil {
		r.FeatureImportance = make(map[string]float64, len(imp))
		for j, v := range imp {
			if j < len(b.FeatureNames) {
				r.FeatureImportance[b.FeatureNames[j]] = v
			}
		}
	}
	for _, c := range search.CVResults {
		folds := make([]Score, len(c.FoldScores))
		for i, s := range c.FoldScores {
			folds[i] = Score(s)
		}
		r.Candidates = append(r.Candidates, CandidateReport{
			Params:     c.Params,
			FoldScores: folds,
			Mean:       Score(c.MeanTestScore),
			Std:        Score(c.StdTestScore),
			Rank:       c.Rank,
			Error:      c.Err,
		})
	}
	return r
}

// Write stores metrics.json and the two charts in dir.
func (r *Report) Write(dir string, clf *lightgbm.LGBMClassifier, split *Split) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create report directory %s", dir)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	if err := os.WriteFile(filepath.Join(dir, MetricsFile), data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write report")
	}

	if err := r.plotFeatureImportance(filepath.Join(dir, FeatureImportanceFile)); err != nil {
		return err
	}
	proba, err := clf.PredictProba(split.XTest)
	if err != nil {
		return err
	}
	rows, _ := proba.Dims()
	scores := mat.NewVecDense(rows, mat.Col(nil, 1, proba))
	return plotROCCurve(filepath.Join(dir, ROCCurveFile), metrics.ColumnVector(split.YTest), scores)
}

// plotFeatureImportance draws a horizontal bar chart, most important on top.
func (r *Report) plotFeatureImportance(path string) error {
	names := make([]string, 0, len(r.FeatureImportance))
	for name := range r.FeatureImportance {
		names = append(names, name)
	}
	// ascending so the largest bar ends up at the top of the y axis
	sort.Slice(names, func(a, b int) bool {
		ia, ib := r.FeatureImportance[names[a]], r.FeatureImportance[names[b]]
		if ia != ib {
			return ia < ib
		}
		return names[a] > names[b]
	})
	values := make(plotter.Values, len(names))
	for i, n := range names {
		values[i] = r.FeatureImportance[n]
	}

	p := plot.New()
	p.Title.Text = "Feature importance (gain)"
	p.X.Label.Text = "normalized gain"
	if len(values) > 0 {
		bars, err := plotter.NewBarChart(values, vg.Points(14))
		if err != nil {
			return errors.Wrap(err, "failed to build importance chart")
		}
		bars.Horizontal = true
		bars.Color = color.RGBA{R: 66, G: 133, B: 244, A: 255}
		p.Add(bars)
		p.NominalY(names...)
	}

	height := vg.Length(len(names)+2) * vg.Points(22)
	if height < 3*vg.Inch {
		height = 3 * vg.Inch
	}
	return errors.Wrap(p.Save(7*vg.Inch, height, path), "failed to save importance chart")
}

func plotROCCurve(path string, yTrue, yScore *mat.VecDense) error {
	p := plot.New()
	p.Title.Text = "ROC curve"
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	fpr, tpr, _, err := metrics.ROCCurve(yTrue, yScore)
	if err != nil {
		return err
	}
	auc, err := metrics.AUC(yTrue, yScore)
	if err != nil {
		return err
	}

	pts := make(plotter.XYs, len(fpr))
	for i := range fpr {
		pts[i].X, pts[i].Y = fpr[i], tpr[i]
	}
	curve, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "failed to build ROC line")
	}
	curve.LineStyle.Width = vg.Points(2)
	curve.LineStyle.Color = color.RGBA{R: 219, G: 68, B: 55, A: 255}

	diagonal, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return errors.Wrap(err, "failed to build diagonal")
	}
	diagonal.LineStyle.Color = color.Gray{Y: 128}
	diagonal.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(plotter.NewGrid(), diagonal, curve)
	p.Legend.Add("ROC (AUC = "+strconv.FormatFloat(auc, 'f', 3, 64)+")", curve)
	p.Legend.Top = false
	p.Legend.Left = false

	return errors.Wrap(p.Save(5*vg.Inch, 5*vg.Inch, path), "failed to save ROC chart")
}
