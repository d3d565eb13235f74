package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/overlay/internal/httputil"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 4.5 * vg.Inch
)

// handleTrackChart renders the live tracks as a scatter in frame
// coordinates and, when a store is attached, stored tracks per label.
func (ws *WebServer) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	page := components.NewPage()
	page.SetPageTitle("Overlay tracks")
	page.AddCharts(liveTrackScatter(ws.cfg.Tracker.Snapshot()))

	if ws.cfg.Tracks != nil {
		counts, err := ws.cfg.Tracks.CountByLabel(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		page.AddCharts(labelCountBar(counts))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func liveTrackScatter(tracks []l3tracks.Track) *charts.Scatter {
	byLabel := make(map[string][]opts.ScatterData)
	for _, tr := range tracks {
		c := tr.Rect.Center()
		byLabel[tr.Label] = append(byLabel[tr.Label], opts.ScatterData{
			Name:       fmt.Sprintf("#%d %s", tr.ID, tr.State),
			Value:      []interface{}{c.X, 1 - c.Y, tr.Alpha},
			SymbolSize: 6 + int(tr.Alpha*14),
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{Title: "Live tracks", Subtitle: fmt.Sprintf("%d tracks, symbol size = alpha", len(tracks))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 1, Name: "x"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "y (flipped)"}),
	)
	for _, label := range sortedKeys(byLabel) {
		scatter.AddSeries(label, byLabel[label],
			charts.WithItemStyleOpts(opts.ItemStyle{Color: l2detect.LabelColorHex(label)}))
	}
	return scatter
}

func labelCountBar(counts map[string]int) *charts.Bar {
	labels := sortedKeys(counts)
	data := make([]opts.BarData, len(labels))
	for i, l := range labels {
		data[i] = opts.BarData{Value: counts[l], ItemStyle: &opts.ItemStyle{Color: l2detect.LabelColorHex(l)}}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Stored tracks by label"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).AddSeries("tracks", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (ws *WebServer) handleTrailPlot(w http.ResponseWriter, r *http.Request) {
	if ws.cfg.Trails == nil {
		httputil.ServiceUnavailable(w, "trail plotter not configured")
		return
	}
	var buf bytes.Buffer
	if err := ws.cfg.Trails.WritePNG(&buf, plotWidth, plotHeight); err != nil {
		if errors.Is(err, ErrNoTrails) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
