// Package domain models wildfire-event feature records and the fixed
// conventions the imputation engine relies on.
//
// # Records
//
// A record is a flat attribute map keyed by column name. Values are float64
// for numeric columns, string for categorical columns, and nil when the value
// is absent. NaN is treated the same as nil. After imputation, the coded
// categorical columns listed in [IntegerColumns] hold Go ints.
//
// # Column groups
//
// Geo block:
//
//	state, county, latitude, longitude
//	Resolved together: either the caller supplies both state and county and
//	they are kept verbatim, or the whole block is copied from the single
//	nearest historical event.
//
// Drop list:
//
//	duration, global_fire_event_id
//	Never part of the neighbor feature space. risk is also excluded from the
//	feature space because it is resolved from neighbors after the fact.
//
// Calendar encoding:
//
//	doy is the day of year (1-366). day_of_year_sin and day_of_year_cos encode
//	it on a circle with period 365.25 days. month is derived from doy on the
//	non-leap reference year 2023 when missing. season is a quarterly bucket
//	computed as (month mod 12) / 3 + 1 with integer division:
//
//	  1 = Dec-Feb | 2 = Mar-May | 3 = Jun-Aug | 4 = Sep-Nov
//
// Sparse fractions:
//
//	cwd_frac and duff_frac are mostly non-zero in the historical corpus. A
//	zero is only treated as a missing-value placeholder when fewer than 5% of
//	historical events report zero for that column.
//
// # Model feature vector
//
// Downstream regressors and classifiers receive the imputed record minus the
// columns in [ModelExcludedColumns], in schema order. See [FeatureVector].
package domain
