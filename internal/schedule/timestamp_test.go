package schedule

import (
	"testing"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 6, 10, 0, 0, 0, ict)

	for _, input := range []string{
		"2024-05-06T10:00:00+07:00",
		"2024-05-06T03:00:00Z",
		"2024-05-06T10:00+07:00",
		"2024-05-06T10:00:00",
		"2024-05-06T10:00",
		"2024-05-06 10:00",
		" 2024-05-06 10:00:00 ",
	} {
		got, err := ParseTimestamp(input, ict)
		require.NoError(t, err, input)
		assert.True(t, want.Equal(got), input)
		assert.Equal(t, ict, got.Location(), input)
	}

	_, err := ParseTimestamp("next monday", ict)
	assert.ErrorIs(t, err, model.ErrInvalidFormat)
}

func TestHasOffset(t *testing.T) {
	assert.True(t, HasOffset("2024-05-06T10:00:00+07:00"))
	assert.True(t, HasOffset("2024-05-06T03:00:00Z"))
	assert.False(t, HasOffset("2024-05-06 10:00"))
}

func TestEnsureZoned_PreservesInstant(t *testing.T) {
	utc := time.Date(2024, 5, 6, 3, 0, 0, 0, time.UTC)
	zoned := EnsureZoned(utc, ict)

	assert.True(t, utc.Equal(zoned))
	assert.Equal(t, 10, zoned.Hour())
}

func TestEndOfDate(t *testing.T) {
	end, err := EndOfDate("2024-05-20", ict)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 20, 23, 59, 59, 999999999, ict), end)

	end, err = EndOfDate("2024-05-20T08:00:00+07:00", ict)
	require.NoError(t, err)
	assert.Equal(t, 20, end.Day())

	_, err = EndOfDate("someday", ict)
	assert.ErrorIs(t, err, model.ErrInvalidFormat)
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 5, 6, 10, 0, 0, 0, ict)
	assert.Equal(t, "2024-05-06T10:00:00+07:00", FormatTimestamp(ts))
	assert.Equal(t, "2024-05-06", FormatDate(ts))
}
