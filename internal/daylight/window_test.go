package daylight_test

import (
	"testing"
	"time"

	"github.com/shini4i/dimmer/internal/daylight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.June, 1, hour, minute, 0, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		delta    int
		expected daylight.Phase
	}{
		{name: "pre-dawn is night", now: at(5, 0), expected: daylight.Night},
		{name: "exactly sunrise is night", now: at(6, 0), expected: daylight.Night},
		{name: "just after sunrise is day", now: at(6, 1), expected: daylight.Day},
		{name: "noon is day", now: at(12, 0), expected: daylight.Day},
		{name: "exactly sunset is day", now: at(18, 0), expected: daylight.Day},
		{name: "after sunset is night", now: at(18, 1), expected: daylight.Night},
		{name: "delta extends the morning", now: at(5, 45), delta: 20, expected: daylight.Day},
		{name: "boundary at sunrise minus delta is night", now: at(5, 40), delta: 20, expected: daylight.Night},
		{name: "delta extends the evening", now: at(18, 20), delta: 20, expected: daylight.Day},
		{name: "after sunset plus delta is night", now: at(18, 21), delta: 20, expected: daylight.Night},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, err := daylight.Classify(daylight.Window{
				Now:          tt.now,
				Sunrise:      at(6, 0),
				Sunset:       at(18, 0),
				DeltaMinutes: tt.delta,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, phase)
		})
	}
}

func TestClassify_Partition(t *testing.T) {
	sunrise, sunset := at(6, 0), at(18, 0)

	for _, delta := range []int{0, 1, 20, 90} {
		earliest := sunrise.Add(-time.Duration(delta) * time.Minute)
		latest := sunset.Add(time.Duration(delta) * time.Minute)

		for now := at(0, 0); now.Before(at(23, 59)); now = now.Add(time.Minute) {
			phase, err := daylight.Classify(daylight.Window{Now: now, Sunrise: sunrise, Sunset: sunset, DeltaMinutes: delta})
			require.NoError(t, err)

			expected := daylight.Night
			if now.After(earliest) && !now.After(latest) {
				expected = daylight.Day
			}
			require.Equal(t, expected, phase, "delta=%d now=%s", delta, now.Format("15:04"))
		}
	}
}

func TestClassify_NormalisesZones(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)

	// 13:00 in UTC+2 is 11:00 UTC, between a 06:00 UTC sunrise and 18:00 UTC sunset.
	phase, err := daylight.Classify(daylight.Window{
		Now:     time.Date(2024, time.June, 1, 13, 0, 0, 0, zone),
		Sunrise: at(6, 0),
		Sunset:  at(18, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, daylight.Day, phase)

	// 19:30 in UTC+2 is 17:30 UTC, still before sunset even though the wall clock is later.
	phase, err = daylight.Classify(daylight.Window{
		Now:     time.Date(2024, time.June, 1, 19, 30, 0, 0, zone),
		Sunrise: at(6, 0),
		Sunset:  at(18, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, daylight.Day, phase)
}

func TestClassify_NegativeDelta(t *testing.T) {
	_, err := daylight.Classify(daylight.Window{Now: at(12, 0), Sunrise: at(6, 0), Sunset: at(18, 0), DeltaMinutes: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, daylight.ErrInvalidDelta)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "day", daylight.Day.String())
	assert.Equal(t, "night", daylight.Night.String())
}
