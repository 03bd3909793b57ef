package imputer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/wildfire-imputer/internal/dataset"
	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/neighbors"
	"github.com/couchcryptid/wildfire-imputer/internal/observability"
)

// DefaultK is the neighbor count used when a caller does not choose one.
const DefaultK = 10

// ErrSchema is returned when an input attribute cannot be coerced to its
// declared column type.
var ErrSchema = errors.New("input does not match schema")

// Config tunes an Engine.
type Config struct {
	// DefaultK applies when Options.K is not positive. Zero means DefaultK.
	DefaultK int

	// CacheSize bounds the number of geo-filtered indices kept between
	// calls. Zero disables caching.
	CacheSize int
}

// Options are the per-call imputation options.
type Options struct {
	K         int
	RoundRisk bool
}

// Engine imputes partial records against a trained Model. It holds no
// mutable state besides the optional index cache and is safe for
// concurrent use.
type Engine struct {
	model    *Model
	defaultK int
	cache    *indexCache
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates an Engine. metrics may be nil.
func New(model *Model, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	e := &Engine{
		model:    model,
		defaultK: cfg.DefaultK,
		logger:   logger,
		metrics:  metrics,
	}
	if e.defaultK <= 0 {
		e.defaultK = DefaultK
	}
	if cfg.CacheSize > 0 {
		e.cache = newIndexCache(cfg.CacheSize)
	}
	return e
}

// Model returns the trained model the engine imputes against.
func (e *Engine) Model() *Model { return e.model }

// Schema returns the reference corpus schema.
func (e *Engine) Schema() domain.Schema { return e.model.Dataset.Schema() }

// Impute returns a fully populated copy of input. Missing attributes never
// cause an error; only values that cannot be coerced to their column type do.
// Attributes outside the schema are ignored.
func (e *Engine) Impute(ctx context.Context, input domain.Record, opts Options) (domain.Record, error) {
	start := time.Now()
	out, err := e.impute(ctx, input, opts)
	if e.metrics != nil {
		e.metrics.ImputeDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			e.metrics.Imputations.WithLabelValues("error").Inc()
		} else {
			e.metrics.Imputations.WithLabelValues("success").Inc()
		}
	}
	return out, err
}

func (e *Engine) impute(ctx context.Context, input domain.Record, opts Options) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := opts.K
	if k <= 0 {
		k = e.defaultK
	}

	rec, err := e.normalize(input)
	if err != nil {
		return nil, err
	}

	state, _ := rec.String(domain.ColState)
	county, _ := rec.String(domain.ColCounty)

	view := dataset.Filter(e.model.Dataset, state, county)
	if e.metrics != nil {
		e.metrics.NeighborPoolSize.Observe(float64(view.Len()))
		if view.Fallback() {
			e.metrics.GeoFallbacks.Inc()
		}
	}
	if view.Fallback() {
		e.logger.Debug("geo filter matched nothing, using full corpus", "state", state, "county", county)
	}

	idx, err := e.index(view, state, county)
	if err != nil {
		return nil, err
	}

	query, err := e.model.Scaler.Transform(e.queryRow(rec))
	if err != nil {
		return nil, fmt.Errorf("scale input: %w", err)
	}
	nn := idx.Query(query, k)

	c := cascade{
		ds:        e.model.Dataset,
		rec:       rec,
		neighbors: rows(nn),
		state:     state,
		county:    county,
	}
	c.run(opts.RoundRisk)

	return rec.Finite(), nil
}

// normalize copies the schema columns of input into a fresh record,
// coercing numeric attributes to float64 and categorical ones to string.
// Absent columns are present with a nil value.
func (e *Engine) normalize(input domain.Record) (domain.Record, error) {
	schema := e.model.Dataset.Schema()
	rec := make(domain.Record, len(schema.Columns)+len(domain.DerivedColumns))

	for _, col := range schema.Columns {
		rec[col.Name] = nil
		if input.Missing(col.Name) {
			continue
		}
		switch col.Kind {
		case domain.KindNumeric:
			f, ok, err := input.Float(col.Name)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrSchema, err)
			}
			if ok && slices.Contains(domain.IntegerColumns, col.Name) && !domain.InIntRange(f) {
				return nil, fmt.Errorf("%w: %s: %g is outside the integer range", ErrSchema, col.Name, f)
			}
			if ok {
				rec[col.Name] = f
			}
		case domain.KindString:
			if s, ok := input.String(col.Name); ok {
				rec[col.Name] = s
			}
		}
	}
	for _, name := range domain.DerivedColumns {
		if _, ok := rec[name]; !ok {
			rec[name] = nil
		}
	}

	unknown := 0
	for name := range input {
		if !schema.Has(name) {
			unknown++
		}
	}
	if unknown > 0 {
		e.logger.Debug("ignoring attributes outside the schema", "count", unknown)
		if e.metrics != nil {
			e.metrics.UnknownAttributes.Add(float64(unknown))
		}
	}

	return rec, nil
}

// queryRow returns the input's neighbor-space features with missing values
// replaced by the corpus medians.
func (e *Engine) queryRow(rec domain.Record) []float64 {
	ds := e.model.Dataset
	medians := ds.Stats().Medians
	row := make([]float64, len(ds.Numeric()))
	for j, name := range ds.Numeric() {
		f, ok := rec[name].(float64)
		if !ok || math.IsNaN(f) {
			f = medians[j]
		}
		row[j] = f
	}
	return row
}

// index returns the neighbor index for a view: the global index for the
// full corpus, otherwise a cached or freshly built geo index.
func (e *Engine) index(view *dataset.View, state, county string) (*neighbors.Index, error) {
	if view.IsFull() {
		return e.model.Index, nil
	}

	key := geoKey(state, county)
	if e.cache != nil {
		if idx, ok := e.cache.get(key); ok {
			e.observeCache("hit")
			return idx, nil
		}
		e.observeCache("miss")
	}

	idx, err := neighbors.Build(view, e.model.Scaler)
	if err != nil {
		return nil, fmt.Errorf("build geo index: %w", err)
	}
	if e.cache != nil {
		e.cache.put(key, idx)
	}
	return idx, nil
}

func (e *Engine) observeCache(result string) {
	if e.metrics != nil {
		e.metrics.IndexCache.WithLabelValues(result).Inc()
	}
}

func rows(nn []neighbors.Neighbor) []int {
	out := make([]int, len(nn))
	for i, n := range nn {
		out[i] = n.Row
	}
	return out
}
