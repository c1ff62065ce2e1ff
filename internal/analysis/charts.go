package analysis

import (
	"fmt"
	"os"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	trendFile      = "trend.png"
	barFile        = "bar_unemp.png"
	scatterFile    = "scatter.png"
	chartURLPrefix = "charts"

	msgNoData        = "Brak danych"
	msgNoTrendData   = "Brak danych do trendu"
	msgNoBarData     = "Brak danych bezrobocia dla najnowszego roku"
	msgNoScatterData = "Brak danych wspólnych (płace + bezrobocie) dla najnowszego wspólnego roku"
)

// Style is the rendering configuration for every chart. It is passed
// explicitly into each render call; there is no process-wide chart state.
type Style struct {
	Width  int
	Height int

	UnempColor drawing.Color
	WageColor  drawing.Color
	FontColor  drawing.Color
	Background drawing.Color
}

// DefaultStyle matches the dashboard UI palette.
func DefaultStyle() Style {
	return Style{
		Width:      1000,
		Height:     550,
		UnempColor: drawing.ColorFromHex("2563eb"),
		WageColor:  drawing.ColorFromHex("f59e0b"),
		FontColor:  drawing.ColorFromHex("0f172a"),
		Background: drawing.ColorWhite,
	}
}

// renderTrend draws the dual-axis time series of yearly mean unemployment
// (left axis) and mean wage (right axis). go-chart needs two points per
// series, so a single-year dataset degrades to a placeholder.
func renderTrend(yearly []yearlyPoint, path string, st Style) error {
	var unempX, unempY, wageX, wageY []float64
	for _, p := range yearly {
		if p.unemp != nil {
			unempX = append(unempX, float64(p.year))
			unempY = append(unempY, *p.unemp)
		}
		if p.wage != nil {
			wageX = append(wageX, float64(p.year))
			wageY = append(wageY, *p.wage)
		}
	}

	var series []chart.Series
	if len(unempX) >= 2 {
		series = append(series, chart.ContinuousSeries{
			Name:    "Bezrobocie (%)",
			XValues: unempX,
			YValues: unempY,
			Style: chart.Style{
				StrokeColor: st.UnempColor,
				StrokeWidth: 2.6,
				DotColor:    st.UnempColor,
				DotWidth:    4,
			},
		})
	}
	if len(wageX) >= 2 {
		series = append(series, chart.ContinuousSeries{
			Name:    "Płace (zł)",
			YAxis:   chart.YAxisSecondary,
			XValues: wageX,
			YValues: wageY,
			Style: chart.Style{
				StrokeColor: st.WageColor,
				StrokeWidth: 2.6,
				DotColor:    st.WageColor,
				DotWidth:    4,
			},
		})
	}
	if len(series) == 0 {
		return renderPlaceholder(path, msgNoTrendData, st)
	}

	graph := chart.Chart{
		Title:      "Trend: bezrobocie i płace (średnia po województwach)",
		Width:      st.Width,
		Height:     st.Height,
		Background: chart.Style{FillColor: st.Background},
		Canvas:     chart.Style{FillColor: st.Background},
		XAxis: chart.XAxis{
			Name:           "Rok",
			ValueFormatter: chart.IntValueFormatter,
		},
		YAxis:          chart.YAxis{Name: "Bezrobocie (%)"},
		YAxisSecondary: chart.YAxis{Name: "Płace (zł)"},
		Series:         series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return renderToFile(path, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// renderBar draws the horizontal bar chart of the latest unemployment year.
// Each bar is a colored segment plus a transparent filler up to the maximum,
// which is how the library does per-bar colors horizontally.
func renderBar(entries []barEntry, year int, path string, st Style) error {
	max := entries[len(entries)-1].value
	min := entries[0].value

	bars := make([]chart.StackedBar, 0, len(entries))
	for _, e := range entries {
		bars = append(bars, chart.StackedBar{
			Name: e.label,
			Values: []chart.Value{
				{
					Value: e.value,
					Label: fmt.Sprintf("%.2f%%", e.value),
					Style: chart.Style{FillColor: heatColor(norm(e.value, min, max))},
				},
				{
					Value: max - e.value + 0.001,
					Style: chart.Style{
						FillColor:   drawing.ColorTransparent,
						StrokeColor: drawing.ColorTransparent,
					},
				},
			},
		})
	}

	graph := chart.StackedBarChart{
		Title:        fmt.Sprintf("Stopa bezrobocia – województwa (%d)", year),
		Width:        st.Width,
		Height:       st.Height,
		Background:   chart.Style{FillColor: st.Background},
		Canvas:       chart.Style{FillColor: st.Background},
		IsHorizontal: true,
		BarSpacing:   6,
		XAxis:        chart.Shown(),
		YAxis:        chart.Shown(),
		Bars:         bars,
	}

	return renderToFile(path, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// renderScatter draws wage vs. unemployment for the latest common year,
// points colored by unemployment magnitude.
func renderScatter(points []scatterPoint, year int, path string, st Style) error {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.wage
		ys[i] = p.unemp
	}

	graph := chart.Chart{
		Title:      fmt.Sprintf("Zależność: wynagrodzenie vs bezrobocie (%d)", year),
		Width:      st.Width,
		Height:     st.Height,
		Background: chart.Style{FillColor: st.Background},
		Canvas:     chart.Style{FillColor: st.Background},
		XAxis:      chart.XAxis{Name: "Przeciętne wynagrodzenie (zł)"},
		YAxis:      chart.YAxis{Name: "Stopa bezrobocia (%)"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Województwa",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    7,
					DotColorProvider: func(xr, yr chart.Range, index int, x, y float64) drawing.Color {
						return chart.Viridis(y, yr.GetMin(), yr.GetMax())
					},
				},
			},
		},
	}

	return renderToFile(path, func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// renderPlaceholder writes a "no data" PNG carrying only the message.
func renderPlaceholder(path, message string, st Style) error {
	r, err := chart.PNG(st.Width, st.Height)
	if err != nil {
		return fmt.Errorf("creating placeholder renderer: %w", err)
	}

	font, err := chart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("loading chart font: %w", err)
	}

	r.SetFillColor(st.Background)
	r.MoveTo(0, 0)
	r.LineTo(st.Width, 0)
	r.LineTo(st.Width, st.Height)
	r.LineTo(0, st.Height)
	r.Close()
	r.Fill()

	r.SetFont(font)
	r.SetFontColor(st.FontColor)
	r.SetFontSize(14)
	box := r.MeasureText(message)
	r.Text(message, (st.Width-box.Width())/2, st.Height/2)

	return renderToFile(path, func(f *os.File) error {
		return r.Save(f)
	})
}

func renderToFile(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("rendering chart %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing chart %s: %w", path, err)
	}
	return nil
}

func norm(v, min, max float64) float64 {
	if max <= min {
		return 0.5
	}
	return (v - min) / (max - min)
}

// heatColor maps [0,1] onto a yellow-orange-red ramp: hotter means higher
// unemployment.
func heatColor(t float64) drawing.Color {
	stops := []drawing.Color{
		drawing.ColorFromHex("ffeda0"),
		drawing.ColorFromHex("feb24c"),
		drawing.ColorFromHex("f03b20"),
	}
	if t <= 0 {
		return stops[0]
	}
	if t >= 1 {
		return stops[len(stops)-1]
	}
	scaled := t * float64(len(stops)-1)
	i := int(scaled)
	frac := scaled - float64(i)
	a, b := stops[i], stops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*frac)
	}
	return drawing.Color{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}
