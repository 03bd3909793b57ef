package domain

import (
	"math"
	"time"
)

const (
	// daysPerYear is the period of the day-of-year circle encoding.
	daysPerYear = 365.25

	// referenceYear anchors day-of-year to calendar conversion. Non-leap.
	referenceYear = 2023
)

// Bounds of the float64 values that round to a representable int.
const (
	maxIntFloat = float64(math.MaxInt)
	minIntFloat = float64(math.MinInt)
)

// InIntRange reports whether f rounds to a value representable as int.
func InIntRange(f float64) bool {
	r := math.RoundToEven(f)
	return r >= minIntFloat && r < maxIntFloat
}

// RoundInt rounds half to even, matching the rounding used when the
// historical corpus was prepared. Values beyond the int range saturate.
func RoundInt(f float64) int {
	r := math.RoundToEven(f)
	switch {
	case r >= maxIntFloat:
		return math.MaxInt
	case r < minIntFloat || math.IsNaN(r):
		return math.MinInt
	}
	return int(r)
}

// DayOfYearEncoding returns the sine and cosine encoding of a day of year.
func DayOfYearEncoding(doy int) (sin, cos float64) {
	angle := 2 * math.Pi * float64(doy) / daysPerYear
	return math.Sin(angle), math.Cos(angle)
}

// MonthFromDayOfYear converts a day of year to its calendar month on the
// non-leap reference year. Out-of-range days are clamped to [1, 365].
func MonthFromDayOfYear(doy int) int {
	doy = min(max(doy, 1), 365)
	return int(time.Date(referenceYear, time.January, doy, 0, 0, 0, 0, time.UTC).Month())
}

// SeasonFromMonth maps a calendar month to its season bucket (1-4).
func SeasonFromMonth(month int) int {
	m := month % 12
	if m < 0 {
		m += 12
	}
	return m/3 + 1
}
