package sessions

import (
	"fmt"
	"sync"
	"time"
)

// Named trading sessions, all defined on the New York clock.
const (
	Asian  = "ASIAN"
	London = "LONDON"
	NYAM   = "NY_AM"
	NYPM   = "NY_PM"
)

var (
	easternOnce sync.Once
	eastern     *time.Location
)

// Eastern returns the America/New_York location every session boundary
// is anchored to. The binary embeds tzdata so this cannot fail on
// stripped containers.
func Eastern() *time.Location {
	easternOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			panic(fmt.Sprintf("load America/New_York: %v", err))
		}
		eastern = loc
	})
	return eastern
}

// window is a clock-of-day span in ET. A window whose end reads at or
// before its start wraps past midnight.
type window struct {
	name      string
	startHour int
	startMin  int
	endHour   int
	endMin    int
}

// Resolution order is most specific first: the New York morning beats
// the broader London window while both are open.
var windows = []window{
	{NYAM, 8, 30, 12, 0},
	{NYPM, 13, 0, 17, 0},
	{London, 3, 0, 12, 0},
	{Asian, 18, 0, 2, 0},
}

// ActiveSession describes where inside a named session an instant falls.
type ActiveSession struct {
	Name     string
	Start    time.Time
	End      time.Time
	Position float64 // elapsed fraction of the session, in [0, 1)
}

// Active resolves the session containing t, if any. Session ends are
// exclusive, so 17:00 ET belongs to no session rather than to the New
// York afternoon.
func Active(t time.Time) (ActiveSession, bool) {
	et := t.In(Eastern())

	for _, w := range windows {
		dur := w.duration()
		// An overnight window may have started yesterday.
		for _, dayOffset := range []int{0, -1} {
			day := et.AddDate(0, 0, dayOffset)
			start := time.Date(day.Year(), day.Month(), day.Day(), w.startHour, w.startMin, 0, 0, Eastern())
			end := start.Add(dur)
			if !et.Before(start) && et.Before(end) {
				return ActiveSession{
					Name:     w.name,
					Start:    start,
					End:      end,
					Position: float64(et.Sub(start)) / float64(dur),
				}, true
			}
		}
	}
	return ActiveSession{}, false
}

func (w window) duration() time.Duration {
	start := time.Duration(w.startHour)*time.Hour + time.Duration(w.startMin)*time.Minute
	end := time.Duration(w.endHour)*time.Hour + time.Duration(w.endMin)*time.Minute
	if end <= start {
		end += 24 * time.Hour
	}
	return end - start
}

// Bounds returns today's [start, end) for a named session relative to
// t, or false for an unknown name. Used by detectors that need the
// session range rather than the live position.
func Bounds(name string, t time.Time) (time.Time, time.Time, bool) {
	et := t.In(Eastern())
	for _, w := range windows {
		if w.name != name {
			continue
		}
		start := time.Date(et.Year(), et.Month(), et.Day(), w.startHour, w.startMin, 0, 0, Eastern())
		return start, start.Add(w.duration()), true
	}
	return time.Time{}, time.Time{}, false
}
