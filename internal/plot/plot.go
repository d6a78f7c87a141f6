// Package plot renders the backtest window as a price chart with the
// moving averages and trade markers.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"crossover-sim/internal/backtest"
	"crossover-sim/internal/model"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Title is the chart heading.
const Title = "Price Simulation & Golden Cross Strategy"

const (
	width  = 14 * vg.Inch
	height = 7 * vg.Inch
)

// ErrInvalidFilename is returned for output names that are not a plain
// file name, or whose extension names an unsupported image format.
var ErrInvalidFilename = errors.New("invalid plot filename")

var supportedExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
	".svg": true, ".pdf": true, ".eps": true,
}

var (
	colorClose = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorEMA   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorSMA   = color.RGBA{R: 148, G: 103, B: 189, A: 255}
	colorLong  = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	colorBuy   = color.RGBA{G: 160, A: 255}
	colorSell  = color.RGBA{R: 210, A: 255}
)

// defaultFormat is used for names without an extension.
const defaultFormat = "png"

// ValidateFilename accepts only a bare file name: no separators, not "."
// or "..", not absolute and without a volume name. A name without an
// extension is written as PNG.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidFilename)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidFilename, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q is a directory reference", ErrInvalidFilename, name)
	case filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return fmt.Errorf("%w: %q is not relative", ErrInvalidFilename, name)
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && !supportedExt[ext] {
		return fmt.Errorf("%w: %q has unsupported extension %q", ErrInvalidFilename, name, ext)
	}
	return nil
}

// imageFormat returns the gonum format name for a validated file name.
func imageFormat(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return defaultFormat
	}
	return ext[1:]
}

// Render draws the last backtest.WindowDays rows of frame with the trade
// markers and saves the chart as dir/filename. It returns the written path.
func Render(frame model.Frame, trades []model.Trade, dir, filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	rows := frame.Tail(backtest.WindowDays)
	if len(rows) == 0 {
		return "", errors.New("plot: empty frame")
	}

	p := gplot.New()
	p.Title.Text = Title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Price"
	p.X.Tick.Marker = gplot.TimeTicks{Format: model.DateLayout}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	closes := make(plotter.XYs, len(rows))
	ema := make(plotter.XYs, len(rows))
	sma := make(plotter.XYs, len(rows))
	long := make(plotter.XYs, len(rows))
	for i, r := range rows {
		x := float64(r.Date.Unix())
		closes[i] = plotter.XY{X: x, Y: r.Close}
		ema[i] = plotter.XY{X: x, Y: r.EMAShort}
		sma[i] = plotter.XY{X: x, Y: r.SMAMedium}
		long[i] = plotter.XY{X: x, Y: r.SMALong}
	}

	series := []struct {
		name   string
		xys    plotter.XYs
		c      color.Color
		w      vg.Length
		dashed bool
	}{
		{"Close", closes, colorClose, vg.Points(2), false},
		{"EMA 7", ema, colorEMA, vg.Points(1.2), false},
		{"SMA 30", sma, colorSMA, vg.Points(1.2), false},
		{"SMA 200", long, colorLong, vg.Points(1.2), true},
	}
	for _, s := range series {
		l, err := plotter.NewLine(s.xys)
		if err != nil {
			return "", fmt.Errorf("plot: %s line: %w", s.name, err)
		}
		l.LineStyle.Color = s.c
		l.LineStyle.Width = s.w
		if s.dashed {
			l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		}
		p.Add(l)
		p.Legend.Add(s.name, l)
	}

	from, to := rows[0].Date, rows[len(rows)-1].Date
	var buys, sells plotter.XYs
	for _, t := range trades {
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		pt := plotter.XY{X: float64(t.Date.Unix()), Y: t.Price}
		if t.Side == model.Buy {
			buys = append(buys, pt)
		} else {
			sells = append(sells, pt)
		}
	}
	markers := []struct {
		name  string
		xys   plotter.XYs
		c     color.Color
		shape draw.GlyphDrawer
	}{
		{"BUY", buys, colorBuy, draw.TriangleGlyph{}},
		{"SELL", sells, colorSell, downTriangleGlyph{}},
	}
	for _, m := range markers {
		if len(m.xys) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(m.xys)
		if err != nil {
			return "", fmt.Errorf("plot: %s markers: %w", m.name, err)
		}
		sc.GlyphStyle.Color = m.c
		sc.GlyphStyle.Radius = vg.Points(6)
		sc.GlyphStyle.Shape = m.shape
		p.Add(sc)
		p.Legend.Add(m.name, sc)
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("plot: create dir: %w", err)
		}
	}
	path := filepath.Join(dir, filename)
	if err := save(p, path, imageFormat(filename)); err != nil {
		return "", fmt.Errorf("plot: save %s: %w", path, err)
	}
	return path, nil
}

// save encodes p in format and writes it to path. Nothing is created when
// encoding fails.
func save(p *gplot.Plot, path, format string) (err error) {
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = wt.WriteTo(f)
	return err
}

// downTriangleGlyph is a filled triangle pointing down.
type downTriangleGlyph struct{}

func (downTriangleGlyph) DrawGlyph(c *draw.Canvas, sty draw.GlyphStyle, pt vg.Point) {
	c.SetColor(sty.Color)
	r := sty.Radius
	dx := r * 0.866
	dy := r * 0.5
	var path vg.Path
	path.Move(vg.Point{X: pt.X, Y: pt.Y - r})
	path.Line(vg.Point{X: pt.X - dx, Y: pt.Y + dy})
	path.Line(vg.Point{X: pt.X + dx, Y: pt.Y + dy})
	path.Close()
	c.Fill(path)
}
