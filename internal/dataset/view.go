package dataset

import "github.com/couchcryptid/wildfire-imputer/internal/domain"

// View is an ordered subset of a dataset's records.
type View struct {
	ds       *Dataset
	rows     []int
	full     bool
	fallback bool
}

// Full returns a view over every record in corpus order.
func (d *Dataset) Full() *View {
	rows := make([]int, len(d.records))
	for i := range rows {
		rows[i] = i
	}
	return &View{ds: d, rows: rows, full: true}
}

// Dataset returns the dataset the view selects from.
func (v *View) Dataset() *Dataset { return v.ds }

// Len returns the number of records in the view.
func (v *View) Len() int { return len(v.rows) }

// Row returns the corpus position of the view's i-th record.
func (v *View) Row(i int) int { return v.rows[i] }

// IsFull reports whether the view covers the whole corpus.
func (v *View) IsFull() bool { return v.full }

// Fallback reports whether geo constraints matched nothing and the view
// fell back to the full corpus.
func (v *View) Fallback() bool { return v.fallback }

// Filter restricts the dataset to records matching the given state and,
// when state is set, county. Empty constraints are ignored. If nothing
// matches, or no constraint applies, the full corpus is returned so the
// neighbor pool never shrinks to zero.
func Filter(d *Dataset, state, county string) *View {
	if state == "" {
		return d.Full()
	}

	var rows []int
	for i, rec := range d.records {
		if s, _ := rec.String(domain.ColState); s != state {
			continue
		}
		if county != "" {
			if c, _ := rec.String(domain.ColCounty); c != county {
				continue
			}
		}
		rows = append(rows, i)
	}

	if len(rows) == 0 {
		v := d.Full()
		v.fallback = true
		return v
	}
	return &View{ds: d, rows: rows, full: len(rows) == len(d.records)}
}
