package window

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/clock"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
)

const (
	// DateFormat identifies a Period.
	DateFormat = "2006-01-02"
	// QueryTimestampFormat is the timestamp form the metering API accepts in
	// its window parameter.
	QueryTimestampFormat = "2006-01-02T15:04:05Z"

	// MinHorizonDays is the smallest backfill horizon that still contains a
	// complete day once the most recent two days are excluded.
	MinHorizonDays = 3
	// latencyDays is how far behind now data is considered settled.
	latencyDays = 2

	day = 24 * time.Hour
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// QueryString renders the window as the metering API's window parameter.
func (w Window) QueryString() string {
	return w.Start.UTC().Format(QueryTimestampFormat) + "," + w.End.UTC().Format(QueryTimestampFormat)
}

func (w Window) String() string {
	return w.QueryString()
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Period is one calendar day [Start, End) in UTC identified by Date.
type Period struct {
	Date  string
	Start time.Time
	End   time.Time
}

// NewPeriod returns the calendar day containing t.
func NewPeriod(t time.Time) Period {
	start := Midnight(t)
	return Period{
		Date:  start.Format(DateFormat),
		Start: start,
		End:   start.Add(day),
	}
}

// ParsePeriod returns the Period for a date such as 2024-01-31.
func ParsePeriod(date string) (Period, error) {
	t, err := time.ParseInLocation(DateFormat, date, time.UTC)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period date %q: %v", date, err)
	}
	return NewPeriod(t), nil
}

func (p Period) Window() Window {
	return Window{Start: p.Start, End: p.End}
}

func (p Period) String() string {
	return p.Date
}

// Year and Month are the zero-padded partition coordinates of the period.
func (p Period) Year() string {
	return p.Start.Format("2006")
}

func (p Period) Month() string {
	return p.Start.Format("01")
}

// Midnight truncates t to the start of its UTC day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Plan computes the coarse discovery window for a backfill horizon and the
// calendar days expected inside it. The window runs from midnight horizon
// days ago up to midnight two days ago.
func Plan(now time.Time, horizonDays int) (Window, []Period, error) {
	if horizonDays < MinHorizonDays {
		return Window{}, nil, exporterrors.Configuration("backfill period must be at least %d days, got %d", MinHorizonDays, horizonDays)
	}
	today := Midnight(now)
	w := Window{
		Start: today.AddDate(0, 0, -horizonDays),
		End:   today.AddDate(0, 0, -latencyDays),
	}
	var periods []Period
	for start := w.Start; start.Before(w.End); start = start.AddDate(0, 0, 1) {
		periods = append(periods, NewPeriod(start))
	}
	return w, periods, nil
}

// SinglePeriod is the day three days before now, exported when gap detection
// is turned off.
func SinglePeriod(now time.Time) Period {
	return NewPeriod(Midnight(now).AddDate(0, 0, -(latencyDays + 1)))
}

// Planner plans against an injected clock.
type Planner struct {
	Clock       clock.Clock
	HorizonDays int
}

func NewPlanner(c clock.Clock, horizonDays int) *Planner {
	return &Planner{Clock: c, HorizonDays: horizonDays}
}

func (p *Planner) Plan() (Window, []Period, error) {
	return Plan(p.Clock.Now(), p.HorizonDays)
}

func (p *Planner) SinglePeriod() Period {
	return SinglePeriod(p.Clock.Now())
}
