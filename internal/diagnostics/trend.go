package diagnostics

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/motion.report/internal/baseline"
	"github.com/banshee-data/motion.report/internal/db"
)

// AssetsHost serves the echarts javascript referenced by rendered pages.
const AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

const trendDateLayout = "2006-01-02 15:04"

// RenderTrendHTML writes a page charting a patient's metrics per session and
// the distribution of their risk levels.
func RenderTrendHTML(w io.Writer, patientID string, points []db.TrendPoint) error {
	x := make([]string, 0, len(points))
	symmetry := make([]opts.LineData, 0, len(points))
	brady := make([]opts.LineData, 0, len(points))
	freq := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		x = append(x, p.RecordedAt.UTC().Format(trendDateLayout))
		symmetry = append(symmetry, opts.LineData{Value: p.GaitSymmetry})
		brady = append(brady, opts.LineData{Value: p.BradykinesiaScore})
		if p.TremorFrequency != nil {
			freq = append(freq, opts.LineData{Value: *p.TremorFrequency})
		} else {
			// echarts draws "-" as a gap.
			freq = append(freq, opts.LineData{Value: "-"})
		}
	}

	subtitle := fmt.Sprintf("patient %s, %d sessions", patientID, len(points))

	metrics := charts.NewLine()
	metrics.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Motion Trend", Theme: "dark", Width: "1100px", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Gait and Bradykinesia", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Session", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "Score", NameLocation: "middle", NameGap: 30}),
	)
	metrics.SetXAxis(x).
		AddSeries("gait symmetry", symmetry, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#4caf50"})).
		AddSeries("bradykinesia", brady, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff9800"}))

	tremorChart := charts.NewLine()
	tremorChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1100px", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Tremor Frequency"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Session", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Hz", NameLocation: "middle", NameGap: 30}),
	)
	tremorChart.SetXAxis(x).
		AddSeries("tremor frequency", freq, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	levels := []baseline.RiskLevel{baseline.RiskBaselineLearning, baseline.RiskLow, baseline.RiskMedium, baseline.RiskHigh}
	counts := make(map[baseline.RiskLevel]int, len(levels))
	for _, p := range points {
		if p.RiskLevel != "" {
			counts[p.RiskLevel]++
		}
	}
	labels := make([]string, len(levels))
	bars := make([]opts.BarData, len(levels))
	for i, l := range levels {
		labels[i] = string(l)
		bars[i] = opts.BarData{Value: counts[l]}
	}

	risk := charts.NewBar()
	risk.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1100px", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Risk Levels"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	risk.SetXAxis(labels).
		AddSeries("sessions", bars,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = fmt.Sprintf("Motion Trend - %s", patientID)
	page.AddCharts(metrics, tremorChart, risk)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render trend: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteTrendHTML renders the trend page to path.
func WriteTrendHTML(path, patientID string, points []db.TrendPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trend file: %w", err)
	}
	if err := RenderTrendHTML(f, patientID, points); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
