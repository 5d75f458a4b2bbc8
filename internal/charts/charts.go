// Package charts renders the stat curve and bucket win rates as standalone HTML
// pages.
package charts

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
	"github.com/ramonehamilton/matchup-companion/internal/stats"
)

// ChartConfig holds configuration for charts.
type ChartConfig struct {
	Title    string   // Chart title
	Subtitle string   // Chart subtitle
	Width    string   // Chart width (e.g., "900px")
	Height   string   // Chart height (e.g., "500px")
	Theme    string   // Chart theme
	Colors   []string // Series colors
}

// DefaultChartConfig returns default chart configuration.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:  "900px",
		Height: "500px",
		Theme:  "light",
		Colors: []string{"#5470C6", "#91CC75", "#FAC858", "#EE6666"},
	}
}

// DataPoint represents a single data point in a chart.
type DataPoint struct {
	Label string
	Value float64
}

// BucketRow is one bar group of the win rate chart.
type BucketRow struct {
	Key            bucket.Key
	Count          int64
	GlobalWinRate  float64
	LocalWinRate   float64
	LocalAvailable bool
}

func (c ChartConfig) globalOptions() []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Width:  c.Width,
			Height: c.Height,
			Theme:  c.Theme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    c.Title,
			Subtitle: c.Subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
		}),
		charts.WithColorsOpts(opts.Colors(c.Colors)),
	}
}

// CurvePoints samples est at every level from 1 to maxLevel.
func CurvePoints(est *stats.Estimator, maxLevel int) []DataPoint {
	if maxLevel < 1 {
		maxLevel = 1
	}
	points := make([]DataPoint, 0, maxLevel)
	for level := 1; level <= maxLevel; level++ {
		points = append(points, DataPoint{Label: fmt.Sprint(level), Value: est.Estimate(level)})
	}
	return points
}

// RenderCurve writes a line chart of the estimated total stats per level, with
// the curve's anchors marked.
func RenderCurve(w io.Writer, est *stats.Estimator, maxLevel int, config ChartConfig) error {
	if config.Title == "" {
		config.Title = "Estimated battle stats by level"
	}
	points := CurvePoints(est, maxLevel)

	anchors := make(map[string]bool)
	for _, a := range est.Curve().Anchors() {
		anchors[fmt.Sprint(a.Level)] = true
	}

	xLabels := make([]string, len(points))
	estimate := make([]opts.LineData, len(points))
	marked := make([]opts.LineData, len(points))
	for i, p := range points {
		xLabels[i] = p.Label
		estimate[i] = opts.LineData{Value: p.Value}
		if anchors[p.Label] {
			marked[i] = opts.LineData{Value: p.Value, Symbol: "circle", SymbolSize: 8}
		} else {
			marked[i] = opts.LineData{Value: "-"}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(append(config.globalOptions(),
		charts.WithYAxisOpts(opts.YAxis{Name: "total stats", Type: "log"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "level"}),
	)...)
	line.SetXAxis(xLabels).
		AddSeries("estimate", estimate, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), ShowSymbol: opts.Bool(false)})).
		AddSeries("anchors", marked, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: 0}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// BucketRows joins the global aggregate with the local snapshot and returns the
// limit most populated global buckets. limit <= 0 returns every bucket.
func BucketRows(global aggregate.Global, local aggregate.ClientSnapshot, limit int) []BucketRow {
	rows := make([]BucketRow, 0, len(global.Buckets))
	for key, agg := range global.Buckets {
		row := BucketRow{Key: key, Count: agg.Count, GlobalWinRate: agg.WinRate()}
		if l, ok := local.Buckets[key]; ok && l.Count > 0 {
			row.LocalWinRate = l.WinRate()
			row.LocalAvailable = true
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// RenderWinRates writes a bar chart comparing community and local win rates.
func RenderWinRates(w io.Writer, rows []BucketRow, config ChartConfig) error {
	if len(rows) == 0 {
		return fmt.Errorf("no buckets to chart")
	}
	if config.Title == "" {
		config.Title = "Win rate by bucket"
	}

	xLabels := make([]string, len(rows))
	community := make([]opts.BarData, len(rows))
	mine := make([]opts.BarData, len(rows))
	for i, r := range rows {
		xLabels[i] = string(r.Key)
		community[i] = opts.BarData{Value: r.GlobalWinRate, Name: fmt.Sprintf("%d fights", r.Count)}
		if r.LocalAvailable {
			mine[i] = opts.BarData{Value: r.LocalWinRate}
		} else {
			mine[i] = opts.BarData{Value: "-"}
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(append(config.globalOptions(),
		charts.WithYAxisOpts(opts.YAxis{Name: "win rate", Min: 0, Max: 1}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 30}}),
	)...)
	bar.SetXAxis(xLabels).
		AddSeries("community", community).
		AddSeries("local", mine)

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// WriteFile renders into the file at path, creating parent directories.
func WriteFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// OpenInBrowser opens the given file path in the default web browser.
func OpenInBrowser(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", absPath)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", absPath)
	case "linux":
		cmd = exec.Command("xdg-open", absPath)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
