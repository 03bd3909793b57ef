// Package dataset holds the historical wildfire corpus the imputation engine
// borrows values from, together with the statistics computed once over it.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/wildfire-imputer/internal/domain"
)

var (
	// ErrEmptyCorpus is returned when a dataset is built from zero records.
	ErrEmptyCorpus = errors.New("reference corpus is empty")

	// ErrSchema is returned when the corpus does not match its schema.
	ErrSchema = errors.New("reference corpus schema mismatch")
)

// prefireQuantile is the upper clip applied to prefire_fuel.
const prefireQuantile = 0.99

// Stats are the corpus-wide statistics the rule cascade consults.
type Stats struct {
	// Medians are aligned with Dataset.Numeric.
	Medians []float64 `json:"medians"`

	// PrefireP99 is +Inf when the corpus has no prefire_fuel values.
	PrefireP99 float64 `json:"prefire_p99"`

	// ZeroRatios holds the fraction of records equal to zero per sparse
	// fraction column.
	ZeroRatios map[string]float64 `json:"zero_ratios"`
}

// Dataset is an immutable reference corpus.
type Dataset struct {
	schema      domain.Schema
	records     []domain.Record
	numeric     []string
	categorical []string
	columns     map[string][]float64
	stats       Stats
}

// Build partitions the schema into feature groups, validates every record
// against it and computes the corpus statistics.
func Build(schema domain.Schema, records []domain.Record) (*Dataset, error) {
	ds, err := assemble(schema, records)
	if err != nil {
		return nil, err
	}
	ds.stats = computeStats(ds)
	return ds, nil
}

// Restore rebuilds a dataset from a persisted corpus and previously computed
// statistics without recomputing them.
func Restore(schema domain.Schema, records []domain.Record, stats Stats) (*Dataset, error) {
	ds, err := assemble(schema, records)
	if err != nil {
		return nil, err
	}
	if len(stats.Medians) != len(ds.numeric) {
		return nil, fmt.Errorf("%w: %d medians for %d numeric features", ErrSchema, len(stats.Medians), len(ds.numeric))
	}
	if stats.ZeroRatios == nil {
		stats.ZeroRatios = map[string]float64{}
	}
	ds.stats = stats
	return ds, nil
}

func assemble(schema domain.Schema, records []domain.Record) (*Dataset, error) {
	if len(records) == 0 {
		return nil, ErrEmptyCorpus
	}
	for _, col := range domain.GeoBlock {
		if !schema.Has(col) {
			return nil, fmt.Errorf("%w: missing geo column %q", ErrSchema, col)
		}
	}

	ds := &Dataset{
		schema:  schema,
		records: records,
		columns: make(map[string][]float64),
	}
	ds.numeric, ds.categorical = partition(schema)

	for _, c := range schema.Columns {
		if c.Kind != domain.KindNumeric {
			continue
		}
		col := make([]float64, len(records))
		for i, rec := range records {
			f, ok, err := rec.Float(c.Name)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d: %w", ErrSchema, i, err)
			}
			if !ok {
				f = math.NaN()
			}
			col[i] = f
		}
		ds.columns[c.Name] = col
	}

	for i, rec := range records {
		for _, c := range schema.Columns {
			if c.Kind != domain.KindString || rec.Missing(c.Name) {
				continue
			}
			if _, ok := rec[c.Name].(string); !ok {
				return nil, fmt.Errorf("%w: record %d: %s: expected string, got %T", ErrSchema, i, c.Name, rec[c.Name])
			}
		}
	}

	return ds, nil
}

// partition splits the schema into neighbor-space numeric features and
// categorical features. Geo columns, the drop list and risk are excluded.
func partition(schema domain.Schema) (numeric, categorical []string) {
	for _, c := range schema.Columns {
		if domain.IsGeo(c.Name) || slices.Contains(domain.DropColumns, c.Name) || c.Name == domain.ColRisk {
			continue
		}
		switch c.Kind {
		case domain.KindNumeric:
			numeric = append(numeric, c.Name)
		case domain.KindString:
			categorical = append(categorical, c.Name)
		}
	}
	return numeric, categorical
}

// Schema returns the corpus schema.
func (d *Dataset) Schema() domain.Schema { return d.schema }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Record returns the record at corpus position i. Callers must not mutate it.
func (d *Dataset) Record(i int) domain.Record { return d.records[i] }

// Records returns the full corpus. Callers must not mutate it.
func (d *Dataset) Records() []domain.Record { return d.records }

// Numeric returns the ordered neighbor-space feature names.
func (d *Dataset) Numeric() []string { return d.numeric }

// Categorical returns the categorical feature names.
func (d *Dataset) Categorical() []string { return d.categorical }

// Stats returns the corpus statistics.
func (d *Dataset) Stats() Stats { return d.stats }

// Column returns the numeric column values with NaN for missing entries.
func (d *Dataset) Column(name string) ([]float64, bool) {
	col, ok := d.columns[name]
	return col, ok
}

// Value returns the numeric value of a column at corpus position i.
func (d *Dataset) Value(name string, i int) float64 {
	col, ok := d.columns[name]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// FilledRow returns the numeric feature vector of record i with missing
// values replaced by the corpus medians.
func (d *Dataset) FilledRow(i int) []float64 {
	row := make([]float64, len(d.numeric))
	for j, name := range d.numeric {
		v := d.columns[name][i]
		if math.IsNaN(v) {
			v = d.stats.Medians[j]
		}
		row[j] = v
	}
	return row
}

// ZeroRatio returns the corpus zero ratio of a sparse fraction column. It
// returns 1 for columns the corpus lacks so their zeros are never replaced.
func (d *Dataset) ZeroRatio(name string) float64 {
	r, ok := d.stats.ZeroRatios[name]
	if !ok {
		return 1
	}
	return r
}
