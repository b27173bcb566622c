package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPattern(t *testing.T, text string) []Slot {
	t.Helper()
	slots, err := ParsePattern(text, ict)
	require.NoError(t, err)
	return slots
}

func TestGenerate_Properties(t *testing.T) {
	pattern := mustPattern(t, "Monday 17:00, Thursday 07:30, Saturday 12:00")
	anchor := time.Date(2024, 5, 1, 8, 0, 0, 0, ict)

	for _, n := range []int{1, 2, 5, 13} {
		got := Generate(anchor, pattern, n)
		require.Len(t, got, n)

		prev := anchor
		for _, ts := range got {
			assert.True(t, ts.After(prev), "strictly increasing")
			prev = ts

			matched := false
			for _, slot := range pattern {
				if slot.Matches(ts) {
					matched = true
				}
			}
			assert.True(t, matched, "every occurrence matches a slot: %s", ts)
		}
	}
}

func TestGenerate_Order(t *testing.T) {
	pattern := mustPattern(t, "Thursday 17:00, Monday 17:00")
	anchor := time.Date(2024, 5, 1, 8, 0, 0, 0, ict) // Wednesday

	got := Generate(anchor, pattern, 3)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 2, 17, 0, 0, 0, ict),
		time.Date(2024, 5, 6, 17, 0, 0, 0, ict),
		time.Date(2024, 5, 9, 17, 0, 0, 0, ict),
	}, got)
}

func TestGenerate_Empty(t *testing.T) {
	anchor := time.Date(2024, 5, 1, 8, 0, 0, 0, ict)
	assert.Empty(t, Generate(anchor, nil, 5))
	assert.Empty(t, Generate(anchor, mustPattern(t, "Monday 10:00"), 0))
}

func TestGenerateUntil(t *testing.T) {
	pattern := mustPattern(t, "Monday 10:00")
	anchor := time.Date(2024, 5, 1, 8, 0, 0, 0, ict)
	until := time.Date(2024, 5, 20, 10, 0, 0, 0, ict)

	got := GenerateUntil(anchor, pattern, until)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 6, 10, 0, 0, 0, ict),
		time.Date(2024, 5, 13, 10, 0, 0, 0, ict),
		time.Date(2024, 5, 20, 10, 0, 0, 0, ict),
	}, got)

	assert.Empty(t, GenerateUntil(anchor, pattern, anchor))
}
