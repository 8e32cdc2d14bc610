package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOf(t *testing.T) {
	assert.Equal(t, DateKey(20240131000000), KeyOf(time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, DateKey(20240301000000), KeyFromDate(2024, 2, 30))
}

func TestDateKeyRoundTrip(t *testing.T) {
	day := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 800; i++ {
		k := KeyOf(day)
		require.True(t, k.Valid(), "key %d", k)
		require.Equal(t, day, k.Date())
		require.Equal(t, k, KeyOf(k.Date()))
		day = day.AddDate(0, 0, 1)
	}
}

func TestDateKeyValid(t *testing.T) {
	cases := map[DateKey]bool{
		20240229000000: true,
		20230229000000: false,
		20240101000001: false,
		20241301000000: false,
		0:              false,
	}
	for k, want := range cases {
		assert.Equal(t, want, k.Valid(), "key %d", int64(k))
	}
	assert.False(t, DateKey(-20240101000000).Valid())
}

func TestParseDateKey(t *testing.T) {
	k, err := ParseDateKey("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, DateKey(20240229000000), k)

	k, err = ParseDateKey("20240115000000")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", k.String())

	for _, bad := range []string{"", "2024-13-01", "20240115", "yesterday", "20240230000000"} {
		_, err := ParseDateKey(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, "input %q", bad)
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 1, DaysBetween(20240228000000, 20240229000000))
	assert.Equal(t, 2, DaysBetween(20240228000000, 20240301000000))
	assert.Equal(t, 366, DaysBetween(20240101000000, 20250101000000))
	assert.Equal(t, -5, DaysBetween(20240110000000, 20240105000000))
	assert.Equal(t, DateKey(20240327000000), DateKey(20240228000000).AddDays(28))
}

func TestMonthBounds(t *testing.T) {
	from, to := MonthBounds(2024, time.February)
	assert.Equal(t, DateKey(20240201000000), from)
	assert.Equal(t, DateKey(20240301000000), to)

	from, to = MonthBounds(2024, time.December)
	assert.Equal(t, DateKey(20241201000000), from)
	assert.Equal(t, DateKey(20250101000000), to)
}
