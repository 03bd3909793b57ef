package domain

import (
	"fmt"
	"math"
	"slices"
)

// Column names with fixed meaning in the rule cascade.
const (
	ColState     = "state"
	ColCounty    = "county"
	ColLatitude  = "latitude"
	ColLongitude = "longitude"

	ColDuration = "duration"
	ColEventID  = "global_fire_event_id"
	ColRisk     = "risk"
	ColEndFlag  = "end_tomorrow"

	ColDOY         = "doy"
	ColMonth       = "month"
	ColSeason      = "season"
	ColDOYSin      = "day_of_year_sin"
	ColDOYCos      = "day_of_year_cos"
	ColPrefireFuel = "prefire_fuel"
	ColCWDFrac     = "cwd_frac"
	ColDuffFrac    = "duff_frac"
	ColBurnSev     = "BSEV"
)

var (
	// GeoBlock is resolved as a single consistency unit.
	GeoBlock = []string{ColState, ColCounty, ColLatitude, ColLongitude}

	// DropColumns never enter the neighbor feature space.
	DropColumns = []string{ColDuration, ColEventID}

	// SparseFractionColumns are checked for placeholder zeros.
	SparseFractionColumns = []string{ColCWDFrac, ColDuffFrac}

	// IntegerColumns are coded categorical or ordinal attributes that are
	// rounded and cast to int in the result.
	IntegerColumns = []string{
		"covertype", "fuelcode", "fuel_moisture_class", "burn_source",
		"burnday_source", ColBurnSev, ColMonth, ColSeason, ColDOY,
	}

	// DerivedColumns are appended to every result.
	DerivedColumns = []string{ColDOYSin, ColDOYCos}

	// ModelExcludedColumns are stripped before a record is handed to the
	// duration regressor and hazard classifier.
	ModelExcludedColumns = []string{ColDuration, ColEventID, ColState, ColCounty, ColEndFlag, ColRisk}
)

// Kind is the declared type of a column.
type Kind int

const (
	KindNumeric Kind = iota
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is one named, typed attribute.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is the ordered set of columns of a reference corpus.
type Schema struct {
	Columns []Column `json:"columns"`
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the schema declares the column.
func (s Schema) Has(name string) bool {
	_, ok := s.Kind(name)
	return ok
}

// Kind returns the declared kind of a column.
func (s Schema) Kind(name string) (Kind, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c.Kind, true
		}
	}
	return 0, false
}

// IsGeo reports whether the column belongs to the geo block.
func IsGeo(name string) bool {
	return slices.Contains(GeoBlock, name)
}

// InferSchema derives a schema from a corpus. Column order follows first
// appearance; each column's kind comes from its first non-null value. Columns
// that are null everywhere are numeric. state and county are always strings.
func InferSchema(records []Record, order []string) Schema {
	seen := make(map[string]int)
	var cols []Column

	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = len(cols)
		kind := KindNumeric
		if name == ColState || name == ColCounty {
			kind = KindString
		}
		cols = append(cols, Column{Name: name, Kind: kind})
	}

	for _, name := range order {
		add(name)
	}
	for _, rec := range records {
		for _, name := range sortedKeys(rec) {
			add(name)
		}
	}

	resolved := make(map[string]bool)
	for _, rec := range records {
		for name, v := range rec {
			if resolved[name] || v == nil {
				continue
			}
			if name == ColState || name == ColCounty {
				resolved[name] = true
				continue
			}
			switch x := v.(type) {
			case string:
				cols[seen[name]].Kind = KindString
			case float64:
				if math.IsNaN(x) {
					continue
				}
			}
			resolved[name] = true
		}
	}

	return Schema{Columns: cols}
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
