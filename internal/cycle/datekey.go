package cycle

import (
	"fmt"
	"strconv"
	"time"
)

// dateKeySuffix is the fixed time-of-day suffix the backend appends to every
// YYYYMMDD value.
const dateKeySuffix = 1_000_000

// DateKey encodes a calendar day as YYYYMMDD followed by six zeros,
// e.g. 20240131000000. Keys compare in chronological order.
type DateKey int64

// KeyOf returns the key for the calendar day of t in t's own location.
func KeyOf(t time.Time) DateKey {
	y, m, d := t.Date()
	return DateKey((int64(y)*10000 + int64(m)*100 + int64(d)) * dateKeySuffix)
}

// KeyFromDate normalizes y/m/d (so 2024-02-30 becomes 2024-03-01) and returns its key.
func KeyFromDate(y int, m time.Month, d int) DateKey {
	return KeyOf(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// ParseDateKey accepts either "2006-01-02" or the raw integer encoding.
func ParseDateKey(s string) (DateKey, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return KeyOf(t), nil
	}
	if raw, err := strconv.ParseInt(s, 10, 64); err == nil {
		if k := DateKey(raw); k.Valid() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Date returns midnight UTC of the encoded day.
func (k DateKey) Date() time.Time {
	v := int64(k) / dateKeySuffix
	return time.Date(int(v/10000), time.Month(v/100%100), int(v%100), 0, 0, 0, 0, time.UTC)
}

// Valid reports whether k carries the zero suffix and names a real calendar day.
func (k DateKey) Valid() bool {
	if k <= 0 || k%dateKeySuffix != 0 {
		return false
	}
	return KeyOf(k.Date()) == k
}

// AddDays shifts k by n calendar days.
func (k DateKey) AddDays(n int) DateKey {
	return KeyOf(k.Date().AddDate(0, 0, n))
}

func (k DateKey) String() string {
	return k.Date().Format(time.DateOnly)
}

// DaysBetween returns the number of calendar days from a to b (negative when b < a).
// Both dates are UTC midnights, so the division is exact.
func DaysBetween(a, b DateKey) int {
	return int(b.Date().Sub(a.Date()).Hours() / 24)
}

// MonthBounds returns the half-open range [first of month, first of next month).
func MonthBounds(year int, month time.Month) (DateKey, DateKey) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return KeyOf(first), KeyOf(first.AddDate(0, 1, 0))
}
