package schedule

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// Family selects model-family specific tables and sampling.
type Family string

const (
	FamilySD1  Family = "sd1"
	FamilySDXL Family = "sdxl"
	FamilySVD  Family = "svd"
)

// ParseFamily resolves a family name or alias.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sd1", "sd15", "sd1.5", "base":
		return FamilySD1, nil
	case "sdxl", "xl":
		return FamilySDXL, nil
	case "svd", "video":
		return FamilySVD, nil
	default:
		return "", &ConfigError{Field: "family", Reason: fmt.Sprintf("unknown model family %q", s)}
	}
}

// Align-Your-Steps tables, 10 steps each (11 entries).
var aysTables = map[Family][]float64{
	FamilySD1:  {14.6146412293, 6.4745760956, 3.8636745985, 2.6946151520, 1.8841921177, 1.3943805092, 0.9642583904, 0.6523686016, 0.3977456272, 0.1515232662, 0.0291671582},
	FamilySDXL: {14.6146412293, 6.3184485287, 3.7681790315, 2.1811480769, 1.3405244945, 0.8620721141, 0.5550693289, 0.3798540708, 0.2332364134, 0.1114188177, 0.0291671582},
	FamilySVD:  {700.00, 54.5, 15.886, 7.977, 4.248, 1.789, 0.981, 0.403, 0.173, 0.034, 0.002},
}

func alignYourSteps(steps int, f Family) (Sigmas, error) {
	table, ok := aysTables[f]
	if !ok {
		return nil, &ConfigError{Field: "family", Reason: fmt.Sprintf("no align_your_steps table for %q", f)}
	}
	out, err := Resample(table, steps+1)
	if err != nil {
		return nil, err
	}
	out[len(out)-1] = 0
	return out, nil
}

// Resample stretches a positive decreasing table to n entries by linear
// interpolation of its logarithm over [0,1]. A table that already has n
// entries is returned unchanged.
func Resample(table []float64, n int) (Sigmas, error) {
	if n < 2 {
		return nil, fmt.Errorf("resample to %d entries", n)
	}
	if len(table) == n {
		return append(Sigmas(nil), table...), nil
	}
	if len(table) < 2 {
		return nil, fmt.Errorf("resample table of %d entries", len(table))
	}
	xs := floats.Span(make([]float64, len(table)), 0, 1)
	ys := make([]float64, len(table))
	for i, v := range table {
		if v <= 0 {
			return nil, fmt.Errorf("table entry %d is %v; log-linear resampling needs positive values", i, v)
		}
		ys[i] = math.Log(v)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit table: %w", err)
	}
	out := make(Sigmas, n)
	for i, x := range floats.Span(make([]float64, n), 0, 1) {
		out[i] = math.Exp(pl.Predict(x))
	}
	return out, nil
}
