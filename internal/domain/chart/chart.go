// Package chart assembles the traces of a forecast chart from observed data,
// per-model forecasts and the model registry of a round.
package chart

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/tsarena/internal/domain/types"
)

// DefaultVisible is the number of forecast traces shown when none is configured.
const DefaultVisible = 3

// Palette colours forecast traces by their position after sorting.
var Palette = []string{"#dc2626", "#16a34a", "#9333ea", "#ea580c", "#0891b2", "#ca8a04"}

// Trace colours for observed data.
const (
	contextColor = "#2563eb"
	testColor    = "#6b7280"
)

// Trace kinds.
const (
	KindContext  = "context"
	KindTest     = "test"
	KindForecast = "forecast"
)

// Trace is one line of the chart.
type Trace struct {
	Kind     string    `json:"kind"`
	Name     string    `json:"name"`
	ModelKey string    `json:"model_key,omitempty"`
	X        []string  `json:"x"`
	Y        []float64 `json:"y"`
	Color    string    `json:"color"`
	Dash     string    `json:"dash,omitempty"`
	Visible  bool      `json:"visible"`
	MASE     *float64  `json:"mase,omitempty"`
}

// Filter narrows the forecasts shown. Zero values disable a criterion.
type Filter struct {
	MaxSize      *float64 `json:"max_size,omitempty"`
	Architecture string   `json:"architecture,omitempty"`
	Search       string   `json:"search,omitempty"`
}

// Active reports whether any criterion is set.
func (f Filter) Active() bool {
	return f.MaxSize != nil || strings.TrimSpace(f.Architecture) != "" || strings.TrimSpace(f.Search) != ""
}

// Input is everything a chart is built from.
type Input struct {
	SeriesID   int
	SeriesName string
	Context    []types.DataPoint
	Test       []types.DataPoint
	Forecasts  map[string]types.ForecastData
	Models     []types.Model
	Filter     Filter
	Visible    int
}

// Chart is the assembled chart of one series.
type Chart struct {
	SeriesID int      `json:"series_id"`
	Title    string   `json:"title"`
	Traces   []Trace  `json:"traces"`
	Dropped  []string `json:"dropped,omitempty"`
	Options  Options  `json:"options"`
}

// Options lists the distinct filter values offered for a round.
type Options struct {
	Architectures []string  `json:"architectures"`
	Sizes         []float64 `json:"sizes"`
}

type candidate struct {
	key   string
	data  types.ForecastData
	model types.Model
}

// Assemble builds the chart. Forecasts with no matching registry model are
// dropped. Survivors are ordered by MASE ascending with missing MASE last and
// each line starts at the last context point. Only the first Visible forecast
// traces are shown; the rest are legend-only.
func Assemble(in Input) Chart {
	title := in.SeriesName
	if title == "" {
		title = fmt.Sprintf("Series %d", in.SeriesID)
	}
	out := Chart{SeriesID: in.SeriesID, Title: title, Options: FilterOptions(in.Models)}

	if len(in.Context) > 0 {
		out.Traces = append(out.Traces, observed(KindContext, "Historical Data", in.Context, contextColor, ""))
	}
	if len(in.Test) > 0 {
		out.Traces = append(out.Traces, observed(KindTest, "Actual "+title, in.Test, testColor, "dot"))
	}

	keys := make([]string, 0, len(in.Forecasts))
	for k := range in.Forecasts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cands := make([]candidate, 0, len(keys))
	for _, k := range keys {
		fd := in.Forecasts[k]
		m, ok := match(in.Models, k, fd)
		if !ok {
			out.Dropped = append(out.Dropped, k)
			continue
		}
		if !in.Filter.allows(m) {
			continue
		}
		cands = append(cands, candidate{key: k, data: fd, model: m})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].data.CurrentMASE, cands[j].data.CurrentMASE
		switch {
		case a == nil && b == nil:
			return cands[i].key < cands[j].key
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		}
		return cands[i].key < cands[j].key
	})

	visible := in.Visible
	if visible <= 0 {
		visible = DefaultVisible
	}
	if len(in.Context) == 0 {
		return out
	}
	anchor := in.Context[len(in.Context)-1]
	shown := 0
	for idx, c := range cands {
		if len(c.data.Data) == 0 {
			continue
		}
		x := make([]string, 0, len(c.data.Data)+1)
		y := make([]float64, 0, len(c.data.Data)+1)
		x = append(x, anchor.TS)
		y = append(y, anchor.Value)
		for _, p := range c.data.Data {
			x = append(x, p.TS)
			y = append(y, p.Y)
		}
		out.Traces = append(out.Traces, Trace{
			Kind:     KindForecast,
			Name:     displayName(c),
			ModelKey: c.key,
			X:        x,
			Y:        y,
			Color:    Palette[idx%len(Palette)],
			Dash:     "dash",
			Visible:  shown < visible,
			MASE:     c.data.CurrentMASE,
		})
		shown++
	}
	return out
}

func observed(kind, name string, pts []types.DataPoint, color, dash string) Trace {
	t := Trace{Kind: kind, Name: name, Color: color, Dash: dash, Visible: true,
		X: make([]string, len(pts)), Y: make([]float64, len(pts))}
	for i, p := range pts {
		t.X[i] = p.TS
		t.Y[i] = p.Value
	}
	return t
}

func displayName(c candidate) string {
	label := c.data.Label
	if label == "" {
		label = c.key
	}
	if c.data.CurrentMASE == nil {
		return label
	}
	return fmt.Sprintf("%s (MASE: %.3f)", label, *c.data.CurrentMASE)
}

// match finds the registry model of a forecast keyed by key.
func match(models []types.Model, key string, fd types.ForecastData) (types.Model, bool) {
	for _, m := range models {
		if m.Name == key || (fd.ModelID != "" && m.ReadableID == fd.ModelID) || m.ReadableID == key {
			return m, true
		}
	}
	return types.Model{}, false
}

func (f Filter) allows(m types.Model) bool {
	if f.MaxSize != nil && m.ModelSize != nil && *m.ModelSize > *f.MaxSize {
		return false
	}
	if arch := strings.ToLower(strings.TrimSpace(f.Architecture)); arch != "" {
		if m.Architecture == "" || !strings.Contains(strings.ToLower(m.Architecture), arch) {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if strings.ToLower(m.ReadableID) != q && !strings.Contains(strings.ToLower(m.Name), q) {
			return false
		}
	}
	return true
}

// FilterOptions returns the sorted distinct architectures and sizes of models.
func FilterOptions(models []types.Model) Options {
	archSet := make(map[string]struct{})
	sizeSet := make(map[float64]struct{})
	for _, m := range models {
		if m.Architecture != "" {
			archSet[m.Architecture] = struct{}{}
		}
		if m.ModelSize != nil {
			sizeSet[*m.ModelSize] = struct{}{}
		}
	}
	opts := Options{Architectures: make([]string, 0, len(archSet)), Sizes: make([]float64, 0, len(sizeSet))}
	for a := range archSet {
		opts.Architectures = append(opts.Architectures, a)
	}
	for s := range sizeSet {
		opts.Sizes = append(opts.Sizes, s)
	}
	sort.Strings(opts.Architectures)
	sort.Float64s(opts.Sizes)
	return opts
}
