package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreak(t *testing.T) {
	t.Parallel()

	today := time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)
	day := func(offset int) time.Time { return Day(today).AddDate(0, 0, -offset) }

	tests := []struct {
		name string
		days []time.Time
		want int
	}{
		{name: "no activity", days: nil, want: 0},
		{name: "today only", days: []time.Time{day(0)}, want: 1},
		{name: "three days then gap", days: []time.Time{day(0), day(1), day(2), day(4)}, want: 3},
		{name: "yesterday counts as grace", days: []time.Time{day(1), day(2)}, want: 2},
		{name: "two days ago resets", days: []time.Time{day(2), day(3)}, want: 0},
		{name: "duplicates ignored", days: []time.Time{day(0), day(0), day(1)}, want: 2},
		{name: "future rows skipped", days: []time.Time{day(-1), day(0), day(1)}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Streak(tt.days, today))
		})
	}
}

func TestParseBound(t *testing.T) {
	t.Parallel()

	lower, err := ParseBound("2024-05-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), lower)

	upper, err := ParseBound("2024-05-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 23, 59, 59, 999999999, time.UTC), upper)

	ts, err := ParseBound("2024-05-01T10:00:00+02:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), ts)

	_, err = ParseBound("yesterday", false)
	assert.Error(t, err)
}

func TestMonthRange(t *testing.T) {
	t.Parallel()

	from, to, err := MonthRange(2024, 12)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), to)

	_, _, err = MonthRange(2024, 13)
	assert.Error(t, err)
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ChunkText("", 4))
	assert.Equal(t, []string{"abcd", "ef"}, ChunkText("abcdef", 4))
	assert.Equal(t, []string{"héll", "ó"}, ChunkText("hélló", 4))

	long := strings.Repeat("x", 100)
	assert.Equal(t, long, strings.Join(ChunkText(long, 7), ""))
}
