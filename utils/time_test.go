package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2024, 1, 15, hour, minute, second, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	t.Run("valid clock", func(t *testing.T) {
		got, err := ParseClock("19:30")
		require.NoError(t, err)
		assert.Equal(t, 19*time.Hour+30*time.Minute, got)
	})

	t.Run("midnight", func(t *testing.T) {
		got, err := ParseClock("00:00")
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), got)
	})

	t.Run("invalid values return error", func(t *testing.T) {
		for _, s := range []string{"", "25:00", "12:61", "noon", "12-00"} {
			_, err := ParseClock(s)
			assert.Error(t, err, s)
		}
	})
}

func TestIsWithinWorkingHours(t *testing.T) {
	t.Run("same-day window", func(t *testing.T) {
		cases := []struct {
			now  time.Time
			want bool
		}{
			{at(8, 59, 59), false},
			{at(9, 0, 0), true},
			{at(12, 0, 0), true},
			{at(17, 0, 0), true},
			{at(17, 0, 1), false},
		}
		for _, c := range cases {
			got, err := IsWithinWorkingHours("09:00", "17:00", c.now)
			require.NoError(t, err)
			assert.Equal(t, c.want, got, c.now.Format(time.TimeOnly))
		}
	})

	t.Run("window crossing midnight", func(t *testing.T) {
		cases := []struct {
			now  time.Time
			want bool
		}{
			{at(18, 59, 0), false},
			{at(19, 0, 0), true},
			{at(23, 59, 59), true},
			{at(0, 0, 0), true},
			{at(4, 59, 0), true},
			{at(5, 0, 0), true},
			{at(5, 0, 30), false},
			{at(12, 0, 0), false},
		}
		for _, c := range cases {
			got, err := IsWithinWorkingHours("19:00", "05:00", c.now)
			require.NoError(t, err)
			assert.Equal(t, c.want, got, c.now.Format(time.TimeOnly))
		}
	})

	t.Run("full day window", func(t *testing.T) {
		got, err := IsWithinWorkingHours("00:00", "23:59", at(13, 37, 0))
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("invalid bounds return error", func(t *testing.T) {
		_, err := IsWithinWorkingHours("bad", "05:00", at(1, 0, 0))
		assert.Error(t, err)
		_, err = IsWithinWorkingHours("19:00", "bad", at(1, 0, 0))
		assert.Error(t, err)
	})
}
