// Package diagnostics renders session and patient data for offline review:
// wrist spectrum plots (PNG, gonum/plot) and patient trend pages (HTML,
// go-echarts).
package diagnostics

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/pose"
	"github.com/banshee-data/motion.report/internal/tremor"
)

// ErrNoSpectrum is returned when there is nothing to plot.
var ErrNoSpectrum = errors.New("empty spectrum")

var (
	spectrumColor = color.RGBA{R: 33, G: 150, B: 243, A: 255}
	bandColor     = color.RGBA{R: 255, G: 82, B: 82, A: 255}
)

// WriteSpectrumPNG plots a magnitude spectrum with the edges of band marked.
// The image format follows the extension of path.
func WriteSpectrumPNG(path, title string, freqs, mags []float64, band tremor.Band) error {
	if len(freqs) == 0 || len(freqs) != len(mags) {
		return ErrNoSpectrum
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Magnitude"

	pts := make(plotter.XYs, len(freqs))
	peak := 0.0
	for i := range freqs {
		pts[i] = plotter.XY{X: freqs[i], Y: mags[i]}
		if mags[i] > peak {
			peak = mags[i]
		}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = spectrumColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("magnitude", line)

	if peak == 0 {
		peak = 1
	}
	for _, f := range []float64{band.Min, band.Max} {
		edge, err := plotter.NewLine(plotter.XYs{{X: f, Y: 0}, {X: f, Y: peak}})
		if err != nil {
			return err
		}
		edge.Color = bandColor
		edge.Width = vg.Points(1)
		edge.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(edge)
	}
	p.Add(plotter.NewGrid())

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// WriteWristSpectra writes one spectrum PNG per wrist into dir and returns
// the files written. Wrists without enough samples are skipped.
func WriteWristSpectra(dir, sessionID string, a tremor.Analyzer, seq pose.Sequence) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	var files []string
	for _, wrist := range []pose.Landmark{pose.LeftWrist, pose.RightWrist} {
		freqs, mags, ok := a.WristSpectrum(seq, wrist)
		if !ok {
			monitoring.Logf("[diagnostics] session %s: not enough %s samples for a spectrum", sessionID, wrist)
			continue
		}
		file := filepath.Join(dir, fmt.Sprintf("%s_%s_spectrum.png", sessionID, wrist))
		title := fmt.Sprintf("Session %s - %s spectrum", sessionID, wrist)
		if err := WriteSpectrumPNG(file, title, freqs, mags, tremor.TremorBand); err != nil {
			return files, fmt.Errorf("plot %s spectrum: %w", wrist, err)
		}
		files = append(files, file)
	}
	return files, nil
}
