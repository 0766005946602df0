package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeShiftsIntoVillaDay(t *testing.T) {
	// 16:00 UTC is already midnight of the next day in Bali.
	d, err := Normalize(time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", d.String())

	d, err = Normalize(time.Date(2025, 3, 10, 15, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", d.String())
}

func TestNormalizeIsIdempotent(t *testing.T) {
	d, err := Normalize(time.Date(2025, 7, 1, 3, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	again, err := Normalize(d.Time())
	require.NoError(t, err)
	assert.True(t, d.Equal(again))
}

func TestSameVillaDayNormalizesToSameDate(t *testing.T) {
	morning, err := Normalize(time.Date(2025, 7, 1, 0, 5, 0, 0, Zone))
	require.NoError(t, err)
	night, err := Normalize(time.Date(2025, 7, 1, 15, 55, 0, 0, time.UTC)) // 23:55 WITA
	require.NoError(t, err)
	assert.True(t, morning.Equal(night))
}

func TestNormalizeRejectsZeroInstant(t *testing.T) {
	_, err := Normalize(time.Time{})
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2025-03-01", "2025-03-01"},
		{"2025-03-01T16:00:00.000Z", "2025-03-02"},
		{"2025-03-01T00:00:00+08:00", "2025-03-01"},
		{"  2025-12-24  ", "2025-12-24"},
	}
	for _, tc := range cases {
		d, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, d.String(), tc.in)
	}

	for _, bad := range []string{"", "   ", "not a date"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, bad)
	}
}

func TestDateJSON(t *testing.T) {
	d := Of(2025, time.March, 1)
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-03-01T00:00:00+08:00"`, string(b))

	var back Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, d.Equal(back))

	b, err = json.Marshal(Date{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestNights(t *testing.T) {
	in := Of(2025, time.March, 30)
	assert.Equal(t, 3, in.Nights(in.AddDays(3)))
	assert.Equal(t, "02/04/2025", in.AddDays(3).Display())
}
