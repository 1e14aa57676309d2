package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/clock"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
)

func TestPlan(t *testing.T) {
	now := time.Date(2024, time.January, 8, 13, 45, 12, 0, time.UTC)
	tests := map[string]struct {
		horizon         int
		expectedWindow  Window
		expectedPeriods []string
		expectedErr     bool
	}{
		"horizon below minimum": {
			horizon:     2,
			expectedErr: true,
		},
		"zero horizon": {
			horizon:     0,
			expectedErr: true,
		},
		"minimum horizon yields exactly one period": {
			horizon: 3,
			expectedWindow: Window{
				Start: time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC),
			},
			expectedPeriods: []string{"2024-01-05"},
		},
		"week crossing a year boundary": {
			horizon: 9,
			expectedWindow: Window{
				Start: time.Date(2023, time.December, 30, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC),
			},
			expectedPeriods: []string{"2023-12-30", "2023-12-31", "2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			w, periods, err := Plan(now, tt.horizon)
			if tt.expectedErr {
				require.Error(t, err)
				assert.True(t, exporterrors.Is(err, exporterrors.KindConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedWindow, w)
			var dates []string
			for _, p := range periods {
				dates = append(dates, p.Date)
			}
			assert.Equal(t, tt.expectedPeriods, dates)
		})
	}
}

func TestPlanProperties(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 30, 0, 0, time.UTC)
	for horizon := MinHorizonDays; horizon <= 120; horizon++ {
		_, periods, err := Plan(now, horizon)
		require.NoError(t, err)
		require.Len(t, periods, horizon-2, "horizon %d", horizon)

		for i, p := range periods {
			assert.Equal(t, 24*time.Hour, p.End.Sub(p.Start))
			assert.Equal(t, p.Start.Format(DateFormat), p.Date)
			if i > 0 {
				assert.Equal(t, periods[i-1].End, p.Start, "periods must be contiguous")
			}
		}
		assert.Equal(t, Midnight(now).AddDate(0, 0, -2), periods[len(periods)-1].End)
	}
}

func TestPlanner(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Date(2024, time.January, 8, 23, 59, 59, 0, time.UTC))
	planner := NewPlanner(fakeClock, 4)

	_, periods, err := planner.Plan()
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, "2024-01-04", periods[0].Date)
	assert.Equal(t, "2024-01-05", periods[1].Date)
	assert.Equal(t, "2024-01-05", planner.SinglePeriod().Date)

	fakeClock.Step(time.Second)
	_, periods, err = planner.Plan()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", periods[0].Date)
	assert.Equal(t, "2024-01-06", planner.SinglePeriod().Date)
}

func TestHourlyRanges(t *testing.T) {
	p, err := ParsePeriod("2024-01-01")
	require.NoError(t, err)
	ranges := HourlyRanges(p)
	require.Len(t, ranges, 24)
	assert.Equal(t, p.Start, ranges[0].Start)
	assert.Equal(t, p.End, ranges[23].End)
	for i, r := range ranges {
		assert.Equal(t, time.Hour, r.End.Sub(r.Start))
		if i > 0 {
			assert.Equal(t, ranges[i-1].End, r.Start)
		}
	}
	assert.Equal(t, "2024-01-01T03:00:00Z,2024-01-01T04:00:00Z", ranges[3].QueryString())
}

func TestChunk(t *testing.T) {
	janOne := time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)
	tests := map[string]struct {
		begin     time.Time
		end       time.Time
		chunkSize time.Duration
		maxChunks int
		expected  []Window
	}{
		"begin and end are same": {
			begin:     janOne,
			end:       janOne,
			chunkSize: time.Hour,
		},
		"zero chunk size": {
			begin: janOne,
			end:   janOne.Add(time.Hour),
		},
		"incomplete trailing chunk is dropped": {
			begin:     janOne,
			end:       janOne.Add(90 * time.Minute),
			chunkSize: time.Hour,
			expected:  []Window{{Start: janOne, End: janOne.Add(time.Hour)}},
		},
		"max chunks limits the result": {
			begin:     janOne,
			end:       janOne.Add(5 * time.Hour),
			chunkSize: time.Hour,
			maxChunks: 2,
			expected: []Window{
				{Start: janOne, End: janOne.Add(time.Hour)},
				{Start: janOne.Add(time.Hour), End: janOne.Add(2 * time.Hour)},
			},
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Chunk(tt.begin, tt.end, tt.chunkSize, tt.maxChunks))
		})
	}
}

func TestPeriod(t *testing.T) {
	p := NewPeriod(time.Date(2024, time.February, 29, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-02-29", p.Date)
	assert.Equal(t, "2024", p.Year())
	assert.Equal(t, "02", p.Month())
	assert.True(t, p.Window().Contains(p.Start))
	assert.False(t, p.Window().Contains(p.End))

	_, err := ParsePeriod("2024-13-01")
	assert.Error(t, err)
}
