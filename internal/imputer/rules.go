package imputer

import (
	"math"

	"github.com/couchcryptid/wildfire-imputer/internal/dataset"
	"github.com/couchcryptid/wildfire-imputer/internal/domain"
)

// sparseZeroThreshold is the corpus zero ratio below which an observed zero
// in a sparse fraction column is treated as a placeholder.
const sparseZeroThreshold = 0.05

// cascade applies the fill and consistency rules to one normalized record.
// neighbors holds corpus positions ordered nearest first. The rules run in a
// fixed order and later rules may override earlier ones.
type cascade struct {
	ds        *dataset.Dataset
	rec       domain.Record
	neighbors []int
	state     string
	county    string
}

func (c *cascade) run(roundRisk bool) {
	c.fillNumeric()
	c.fillCategorical()
	c.resolveGeo()
	c.deriveCalendar()
	c.clipPrefireFuel()
	c.correctSparseFractions()
	c.resolveRisk(roundRisk)
	c.coerceIntegers()
	c.coerceGeoStrings()
}

// neighborValues returns a numeric column over the neighbors, NaN for gaps.
func (c *cascade) neighborValues(name string) []float64 {
	out := make([]float64, len(c.neighbors))
	for i, row := range c.neighbors {
		out[i] = c.ds.Value(name, row)
	}
	return out
}

func (c *cascade) fillNumeric() {
	for _, name := range c.ds.Numeric() {
		if !c.rec.Missing(name) {
			continue
		}
		c.rec[name] = dataset.Mean(c.neighborValues(name))
	}
}

func (c *cascade) fillCategorical() {
	for _, name := range c.ds.Categorical() {
		if _, ok := c.rec.String(name); ok {
			continue
		}
		if v, ok := c.mode(name); ok {
			c.rec[name] = v
		}
	}
}

// mode returns the most frequent neighbor value of a categorical column.
// Among equally frequent values the one seen first in distance order wins.
func (c *cascade) mode(name string) (string, bool) {
	counts := make(map[string]int)
	var order []string
	for _, row := range c.neighbors {
		v, ok := c.ds.Record(row).String(name)
		if !ok {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best, bestCount > 0
}

// resolveGeo treats state, county, latitude and longitude as one unit. A
// caller-supplied state and county are kept and only missing coordinates are
// borrowed from the nearest neighbor. Otherwise the whole block is replaced.
func (c *cascade) resolveGeo() {
	if len(c.neighbors) == 0 {
		return
	}
	nearest := c.neighbors[0]

	if c.state != "" && c.county != "" {
		c.rec[domain.ColState] = c.state
		c.rec[domain.ColCounty] = c.county
		if c.rec.Missing(domain.ColLatitude) || c.rec.Missing(domain.ColLongitude) {
			c.rec[domain.ColLatitude] = c.ds.Value(domain.ColLatitude, nearest)
			c.rec[domain.ColLongitude] = c.ds.Value(domain.ColLongitude, nearest)
		}
		return
	}

	src := c.ds.Record(nearest)
	for _, name := range domain.GeoBlock {
		switch name {
		case domain.ColState, domain.ColCounty:
			if s, ok := src.String(name); ok {
				c.rec[name] = s
			} else {
				c.rec[name] = nil
			}
		default:
			c.rec[name] = c.ds.Value(name, nearest)
		}
	}
}

func (c *cascade) deriveCalendar() {
	schema := c.ds.Schema()
	month, haveMonth, _ := c.rec.Float(domain.ColMonth)

	if doy, ok, _ := c.rec.Float(domain.ColDOY); ok {
		d := domain.RoundInt(doy)
		c.rec[domain.ColDOY] = float64(d)
		sin, cos := domain.DayOfYearEncoding(d)
		c.rec[domain.ColDOYSin] = sin
		c.rec[domain.ColDOYCos] = cos

		if !haveMonth {
			month, haveMonth = float64(domain.MonthFromDayOfYear(d)), true
			if schema.Has(domain.ColMonth) {
				c.rec[domain.ColMonth] = month
			}
		}
	}

	if haveMonth && schema.Has(domain.ColSeason) {
		c.rec[domain.ColSeason] = float64(domain.SeasonFromMonth(domain.RoundInt(month)))
	}
}

func (c *cascade) clipPrefireFuel() {
	v, ok, _ := c.rec.Float(domain.ColPrefireFuel)
	if !ok {
		return
	}
	if p99 := c.ds.Stats().PrefireP99; v > p99 {
		c.rec[domain.ColPrefireFuel] = p99
	}
}

func (c *cascade) correctSparseFractions() {
	for _, name := range domain.SparseFractionColumns {
		v, ok, _ := c.rec.Float(name)
		if !ok || v != 0 {
			continue
		}
		if c.ds.ZeroRatio(name) >= sparseZeroThreshold {
			continue
		}
		if med := dataset.Median(c.neighborValues(name)); !math.IsNaN(med) {
			c.rec[name] = med
		}
	}
}

func (c *cascade) resolveRisk(round bool) {
	if !c.ds.Schema().Has(domain.ColRisk) {
		return
	}
	risk := dataset.Mean(c.neighborValues(domain.ColRisk))
	if math.IsNaN(risk) {
		c.rec[domain.ColRisk] = nil
		return
	}
	if round {
		c.rec[domain.ColRisk] = domain.RoundInt(risk)
		return
	}
	c.rec[domain.ColRisk] = risk
}

func (c *cascade) coerceIntegers() {
	for _, name := range domain.IntegerColumns {
		if _, present := c.rec[name]; !present {
			continue
		}
		if v, ok, _ := c.rec.Float(name); ok {
			c.rec[name] = domain.RoundInt(v)
		}
	}
}

func (c *cascade) coerceGeoStrings() {
	for _, name := range []string{domain.ColState, domain.ColCounty} {
		if s, ok := c.rec.String(name); ok {
			c.rec[name] = s
		} else {
			c.rec[name] = nil
		}
	}
}
