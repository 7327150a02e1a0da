// Package preset loads panel sets from YAML. Layout margins, panel order,
// band families and oscillator styling are data, so dashboard variants do not
// need their own code paths.
package preset

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"indicator-dashboardv1/internal/chart"
	"indicator-dashboardv1/internal/chart/panel"
	"indicator-dashboardv1/internal/chart/series"
)

//go:embed default.yaml
var defaultYAML []byte

const (
	KindPrice      = "price"
	KindOscillator = "oscillator"
)

// Preset is a complete dashboard definition.
type Preset struct {
	Geometry  GeometrySpec `yaml:"geometry"`
	Crosshair StyleSpec    `yaml:"crosshair"`
	Panels    []PanelSpec  `yaml:"panels"`
}

type GeometrySpec struct {
	Top    float64 `yaml:"top"`
	Bottom float64 `yaml:"bottom"`
	Gap    float64 `yaml:"gap"`
	Left   float64 `yaml:"left"`
	Right  float64 `yaml:"right"`
}

type StyleSpec struct {
	Color string  `yaml:"color"`
	Dash  string  `yaml:"dash"`
	Width float64 `yaml:"width"`
}

type BandSpec struct {
	Family string    `yaml:"family"`
	Label  string    `yaml:"label"`
	Upper  StyleSpec `yaml:"upper"`
	Middle StyleSpec `yaml:"middle"`
	Lower  StyleSpec `yaml:"lower"`
}

type ComponentSpec struct {
	Key     string   `yaml:"key"`
	Suffix  string   `yaml:"suffix"`
	Kind    string   `yaml:"kind"`
	Dash    string   `yaml:"dash"`
	Palette []string `yaml:"palette"`
}

type PanelSpec struct {
	ID     string  `yaml:"id"`
	Label  string  `yaml:"label"`
	Kind   string  `yaml:"kind"`
	Height float64 `yaml:"height"`

	// price panels
	Candle StyleSpec  `yaml:"candle"`
	Bands  []BandSpec `yaml:"bands"`

	// oscillator panels
	Family     string          `yaml:"family"`
	Prefix     string          `yaml:"prefix"`
	Width      float64         `yaml:"width"`
	Palette    []string        `yaml:"palette"`
	Components []ComponentSpec `yaml:"components"`
}

// Default returns the embedded preset.
func Default() (*Preset, error) {
	return Parse(defaultYAML)
}

// Load reads a preset file; an empty path returns the default.
func Load(path string) (*Preset, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preset: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a preset.
func Parse(data []byte) (*Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("preset: decode: %w", err)
	}
	if len(p.Panels) == 0 {
		return nil, fmt.Errorf("preset: no panels defined")
	}
	for i, ps := range p.Panels {
		if ps.ID == "" {
			return nil, fmt.Errorf("preset: panel %d has no id", i)
		}
		switch ps.Kind {
		case KindPrice:
		case KindOscillator:
			if ps.Family == "" {
				return nil, fmt.Errorf("preset: oscillator panel %s has no family", ps.ID)
			}
		default:
			return nil, fmt.Errorf("preset: panel %s has unknown kind %q", ps.ID, ps.Kind)
		}
	}
	return &p, nil
}

// PanelGeometry returns the registry margins.
func (p *Preset) PanelGeometry() panel.Geometry {
	return panel.Geometry{
		TopInset:    p.Geometry.Top,
		BottomInset: p.Geometry.Bottom,
		Gap:         p.Geometry.Gap,
		Left:        p.Geometry.Left,
		Right:       p.Geometry.Right,
	}
}

// CrosshairStyle returns the guide-line style.
func (p *Preset) CrosshairStyle() chart.Style {
	return p.Crosshair.style()
}

// Descriptors builds one panel descriptor per panel spec, in order.
func (p *Preset) Descriptors() []panel.Descriptor {
	out := make([]panel.Descriptor, 0, len(p.Panels))
	for _, ps := range p.Panels {
		d := panel.Descriptor{ID: ps.ID, Label: ps.Label, HeightShare: ps.Height}
		switch ps.Kind {
		case KindPrice:
			d.Build = series.Main(ps.mainConfig())
		case KindOscillator:
			d.Build = series.Oscillator(ps.oscillatorConfig())
		}
		out = append(out, d)
	}
	return out
}

// Registry builds a registry holding every panel of the preset.
func (p *Preset) Registry() (*panel.Registry, error) {
	reg := panel.NewRegistry(p.PanelGeometry())
	for _, d := range p.Descriptors() {
		if _, err := reg.Add(d); err != nil {
			return nil, fmt.Errorf("preset: %w", err)
		}
	}
	return reg, nil
}

func (ps PanelSpec) mainConfig() series.MainConfig {
	cfg := series.MainConfig{Label: ps.Label, Candle: ps.Candle.style()}
	for _, b := range ps.Bands {
		cfg.Bands = append(cfg.Bands, series.BandStyle{
			Family: b.Family,
			Label:  b.Label,
			Upper:  b.Upper.style(),
			Middle: b.Middle.style(),
			Lower:  b.Lower.style(),
		})
	}
	return cfg
}

func (ps PanelSpec) oscillatorConfig() series.OscillatorConfig {
	cfg := series.OscillatorConfig{
		Family:  ps.Family,
		Prefix:  ps.Prefix,
		Palette: ps.Palette,
		Width:   ps.Width,
	}
	for _, c := range ps.Components {
		cfg.Components = append(cfg.Components, series.Component{
			Key:     c.Key,
			Suffix:  c.Suffix,
			Kind:    chart.SeriesKind(c.Kind),
			Dash:    c.Dash,
			Palette: c.Palette,
		})
	}
	return cfg
}

func (s StyleSpec) style() chart.Style {
	return chart.Style{Color: s.Color, Dash: s.Dash, Width: s.Width}
}
