// Package render produces the comparative figures: per-group mean±CI plots
// with the fitted curve, shaded confidence-band plots, and the all-specimen
// overlay with extremum annotations.
package render

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/archlab/deflect/internal/harmonic"
	"github.com/archlab/deflect/internal/pipeline"
	"github.com/archlab/deflect/internal/types"
	"github.com/archlab/deflect/pkg/config"
)

var (
	meanColor = color.RGBA{R: 0x6a, G: 0x5d, B: 0xc4, A: 0xff}
	bandColor = color.RGBA{R: 0xe9, G: 0xe6, B: 0xf7, A: 0xff}
	fitColor  = color.RGBA{R: 0x3b, G: 0x53, B: 0x87, A: 0xff}
	refColor  = color.RGBA{R: 0xfd, G: 0xd7, B: 0x86, A: 0xff}
)

// Renderer writes figures for one pipeline result.
type Renderer struct {
	cfg    config.Config
	logger *zap.SugaredLogger
}

// New creates a Renderer.
func New(cfg config.Config, logger *zap.SugaredLogger) *Renderer {
	return &Renderer{cfg: cfg, logger: logger}
}

// RenderAll writes every figure into the output directory. A figure that
// fails to render is logged and skipped; rendering never aborts the run.
func (r *Renderer) RenderAll(res *pipeline.Result) error {
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	for _, g := range res.Groups {
		if err := r.groupFigure(g); err != nil {
			r.logger.Warnf("figure for %s: %v", g.Key, err)
		}
		if g.Key.Method == types.MethodASTM {
			if err := r.shadedFigure(g); err != nil {
				r.logger.Warnf("shaded figure for %s: %v", g.Key, err)
			}
		}
	}

	if res.PooledFit != nil {
		if err := r.overlayFigure(res); err != nil {
			r.logger.Warnf("overlay figure: %v", err)
		}
	}
	return nil
}

// groupFigure draws one group's aligned means with CI95 error bars and its
// fitted curve re-evaluated on the aligned axis.
func (r *Renderer) groupFigure(g pipeline.GroupResult) error {
	stats := byAlignedAngle(g.Stats)

	fit, err := refit(stats, r.cfg)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Arch %d - %s", g.Key.Specimen, g.Key.Method)
	p.X.Label.Text = "Aligned Angle (°)"
	p.Y.Label.Text = "Deflection"
	p.Add(plotter.NewGrid())

	pts := meanPoints(stats)
	bars, err := plotter.NewYErrorBars(pts)
	if err != nil {
		return err
	}
	scatter, err := plotter.NewScatter(pts.XYs)
	if err != nil {
		return err
	}
	scatter.Color = meanColor
	bars.Color = meanColor

	curve, err := fitLine(fit, r.cfg.Fit.CurveSamples)
	if err != nil {
		return err
	}

	p.Add(scatter, bars, curve)
	p.Legend.Add("Mean ±95% CI", scatter)
	p.Legend.Add("Harmonic Fit", curve)

	return r.save(p, fmt.Sprintf("Arch%d_%s.png", g.Key.Specimen, g.Key.Method))
}

// shadedFigure draws the fitted curve with a shaded CI band, the band width
// linearly interpolated between observed angles.
func (r *Renderer) shadedFigure(g pipeline.GroupResult) error {
	stats := byAlignedAngle(g.Stats)

	fit, err := refit(stats, r.cfg)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Arch %d - %s", g.Key.Specimen, g.Key.Method)
	p.X.Label.Text = "Aligned Angle (°)"
	p.Y.Label.Text = "Deflection"
	p.Add(plotter.NewGrid())

	angleDeg, values := harmonic.Curve(fit, r.cfg.Fit.CurveSamples)
	if band, err := ciBand(stats, angleDeg, values); err == nil && band != nil {
		band.Color = bandColor
		p.Add(band)
		p.Legend.Add("95% CI", band)
	}

	pts := meanPoints(stats)
	scatter, err := plotter.NewScatter(pts.XYs)
	if err != nil {
		return err
	}
	scatter.Color = meanColor

	meanLine, err := plotter.NewLine(pts.XYs)
	if err != nil {
		return err
	}
	meanLine.Color = meanColor

	curve, err := fitLine(fit, r.cfg.Fit.CurveSamples)
	if err != nil {
		return err
	}

	p.Add(meanLine, scatter, curve)
	p.Legend.Add("Mean", scatter)
	p.Legend.Add("Harmonic Fit", curve)

	return r.save(p, fmt.Sprintf("Arch%d_%s_shaded.png", g.Key.Specimen, g.Key.Method))
}

// overlayFigure draws every pooled-method group's aligned means, the pooled
// fitted curve, and vertical reference lines at the detected extrema.
func (r *Renderer) overlayFigure(res *pipeline.Result) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Domestic Arches %s Deflection", r.cfg.PooledMethod)
	p.X.Label.Text = "Aligned Angle (°)"
	p.Y.Label.Text = "Deflection"
	p.Add(plotter.NewGrid())

	yMin, yMax := math.Inf(1), math.Inf(-1)
	i := 0
	for _, g := range res.Groups {
		if g.Key.Method != r.cfg.PooledMethod {
			continue
		}
		pts := meanPoints(byAlignedAngle(g.Stats))
		line, err := plotter.NewLine(pts.XYs)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("Arch %d", g.Key.Specimen), line)
		i++

		for _, xy := range pts.XYs {
			yMin = math.Min(yMin, xy.Y)
			yMax = math.Max(yMax, xy.Y)
		}
	}

	curve, err := fitLine(*res.PooledFit, r.cfg.Extrema.CurveSamples)
	if err != nil {
		return err
	}
	curve.Color = fitColor
	p.Add(curve)
	p.Legend.Add("Pooled Fit", curve)

	if err := addExtremumMarkers(p, res.Extrema, yMin, yMax); err != nil {
		return err
	}

	return r.save(p, fmt.Sprintf("Domestic_Arches_%s_All.png", r.cfg.PooledMethod))
}

func addExtremumMarkers(p *plot.Plot, extrema []types.Extremum, yMin, yMax float64) error {
	if len(extrema) == 0 || yMin > yMax {
		return nil
	}

	labels := plotter.XYLabels{}
	for _, e := range extrema {
		ref, err := plotter.NewLine(plotter.XYs{
			{X: e.AngleDeg, Y: yMin},
			{X: e.AngleDeg, Y: yMax},
		})
		if err != nil {
			return err
		}
		ref.Color = refColor
		ref.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(ref)

		labels.XYs = append(labels.XYs, plotter.XY{X: e.AngleDeg, Y: yMax})
		labels.Labels = append(labels.Labels, fmt.Sprintf("%.1f°\n%.2f", e.AngleDeg, e.Value))
	}

	l, err := plotter.NewLabels(labels)
	if err != nil {
		return err
	}
	p.Add(l)
	return nil
}

func (r *Renderer) save(p *plot.Plot, name string) error {
	path := filepath.Join(r.cfg.OutputDir, name)
	w := vg.Length(r.cfg.Render.WidthInches) * vg.Inch
	h := vg.Length(r.cfg.Render.HeightInches) * vg.Inch
	if err := p.Save(w, h, path); err != nil {
		return err
	}
	r.logger.Infof("saved %s", path)
	return nil
}

// refit re-fits the group's model on the aligned axis so the drawn curve
// matches the plotted aligned angles.
func refit(stats []types.AlignedStat, cfg config.Config) (types.FitResult, error) {
	theta := make([]float64, len(stats))
	means := make([]float64, len(stats))
	for i, s := range stats {
		theta[i] = s.AngleAlignedRad
		means[i] = s.Mean
	}
	return harmonic.Fit(theta, means, harmonic.Options{
		MaxIterations:     cfg.Fit.MaxIterations,
		GradientTolerance: cfg.Fit.Tolerance,
	})
}

func fitLine(fit types.FitResult, samples int) (*plotter.Line, error) {
	angleDeg, values := harmonic.Curve(fit, samples)
	xys := make(plotter.XYs, len(values))
	for i := range values {
		xys[i] = plotter.XY{X: angleDeg[i], Y: values[i]}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.Color = fitColor
	line.Width = vg.Points(2)
	return line, nil
}

// ciPoints adapts aligned statistics to the plotter's error-bar interfaces.
// Cells with undefined CI report a zero-height bar and are drawn as bare
// points.
type ciPoints struct {
	XYs plotter.XYs
	ci  []float64
}

func meanPoints(stats []types.AlignedStat) ciPoints {
	pts := ciPoints{
		XYs: make(plotter.XYs, len(stats)),
		ci:  make([]float64, len(stats)),
	}
	for i, s := range stats {
		pts.XYs[i] = plotter.XY{X: s.AngleAlignedDeg, Y: s.Mean}
		if s.CIDefined {
			pts.ci[i] = s.CI95
		}
	}
	return pts
}

func (c ciPoints) Len() int                    { return len(c.XYs) }
func (c ciPoints) XY(i int) (float64, float64) { return c.XYs[i].X, c.XYs[i].Y }
func (c ciPoints) YError(i int) (float64, float64) {
	return c.ci[i], c.ci[i]
}

// ciBand builds the shaded polygon fit±ci over the sampled curve, the CI
// interpolated from the observed cells. Groups with no defined CI anywhere
// yield no band.
func ciBand(stats []types.AlignedStat, angleDeg, values []float64) (*plotter.Polygon, error) {
	var xs, cis []float64
	for _, s := range stats {
		if s.CIDefined {
			xs = append(xs, s.AngleAlignedDeg)
			cis = append(cis, s.CI95)
		}
	}
	if len(xs) == 0 {
		return nil, nil
	}

	band := make(plotter.XYs, 0, 2*len(values))
	for i := range values {
		band = append(band, plotter.XY{X: angleDeg[i], Y: values[i] + interp(angleDeg[i], xs, cis)})
	}
	for i := len(values) - 1; i >= 0; i-- {
		band = append(band, plotter.XY{X: angleDeg[i], Y: values[i] - interp(angleDeg[i], xs, cis)})
	}
	return plotter.NewPolygon(band)
}

// interp linearly interpolates y(x) over sorted xs, clamping outside the
// observed range (numpy.interp behavior).
func interp(x float64, xs, ys []float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	i := sort.SearchFloat64s(xs, x)
	x0, x1 := xs[i-1], xs[i]
	y0, y1 := ys[i-1], ys[i]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

func byAlignedAngle(stats []types.AlignedStat) []types.AlignedStat {
	out := append([]types.AlignedStat(nil), stats...)
	sort.Slice(out, func(i, j int) bool { return out[i].AngleAlignedDeg < out[j].AngleAlignedDeg })
	return out
}
