package domain

import "slices"

// Feature is one named model input.
type Feature struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// FeatureVector returns the model inputs of an imputed record: the schema
// columns followed by the derived columns, minus [ModelExcludedColumns].
func FeatureVector(schema Schema, rec Record) []Feature {
	names := append(schema.Names(), DerivedColumns...)
	out := make([]Feature, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] || slices.Contains(ModelExcludedColumns, name) {
			continue
		}
		seen[name] = true
		out = append(out, Feature{Name: name, Value: rec[name]})
	}
	return out
}

// SamplingQuery carries the resolved attributes a historical-event lookup
// filters on.
type SamplingQuery struct {
	State  string   `json:"state,omitempty"`
	County string   `json:"county,omitempty"`
	Season *int     `json:"season,omitempty"`
	DOY    *int     `json:"doy,omitempty"`
	Risk   *float64 `json:"risk,omitempty"`
}

// SamplingQueryFrom extracts the historical-event lookup inputs from an
// imputed record.
func SamplingQueryFrom(rec Record) SamplingQuery {
	q := SamplingQuery{}
	q.State, _ = rec.String(ColState)
	q.County, _ = rec.String(ColCounty)
	if f, ok, err := rec.Float(ColSeason); ok && err == nil {
		v := RoundInt(f)
		q.Season = &v
	}
	if f, ok, err := rec.Float(ColDOY); ok && err == nil {
		v := RoundInt(f)
		q.DOY = &v
	}
	if f, ok, err := rec.Float(ColRisk); ok && err == nil {
		q.Risk = &f
	}
	return q
}
