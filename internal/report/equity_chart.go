// Package report renders account history into human-readable artifacts.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"stockpilot/internal/store"
)

// RenderEquityChart writes an HTML line chart of an account's equity and cash
// history. Points must be in chronological order.
func RenderEquityChart(w io.Writer, accountID int64, points []store.EquityPoint) error {
	if len(points) == 0 {
		return fmt.Errorf("no equity snapshots for account %d", accountID)
	}

	xs := make([]string, len(points))
	equity := make([]opts.LineData, len(points))
	cash := make([]opts.LineData, len(points))
	for i, p := range points {
		xs[i] = p.At.Format(time.DateTime)
		equity[i] = opts.LineData{Value: p.Equity}
		cash[i] = opts.LineData{Value: p.Cash}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Account %d Equity", accountID),
			Subtitle: fmt.Sprintf("%d snapshots", len(points)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xs).
		AddSeries("Equity", equity).
		AddSeries("Cash", cash).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	return line.Render(w)
}
