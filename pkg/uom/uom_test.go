package uom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		amount   float64
		from, to Unit
		want     float64
	}{
		{2, Hour, Minute, 120},
		{1, Day, Hour, 24},
		{1, Week, Day, 7},
		{90, Second, Minute, 1.5},
		{1, Year, Day, 365},
		{1, Month, Day, 30},
		{500, Millisecond, Second, 0.5},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := Convert(tt.amount, tt.from, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := Convert(1, "TF_fortnight", Minute)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestDuration_TruncatesToMinutes(t *testing.T) {
	d, err := Duration(90, Second)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = Duration(2, Hour)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)
}

func TestDeadline(t *testing.T) {
	from := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)

	got, ok, err := Deadline(from, "P1DT2H", 0, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, from.Add(26*time.Hour), got)

	got, ok, err = Deadline(from, "", 3, Day)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, from.Add(72*time.Hour), got)

	_, ok, err = Deadline(from, "", 0, Day)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Deadline(from, "tomorrow", 0, "")
	assert.Error(t, err)

	_, _, err = Deadline(from, "", 1, "TF_nope")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}
