package qr

import "time"

const (
	StatusPresent = "present"
	StatusLate    = "late"
)

// Period is one slice of a class session during which attendance is taken
// separately. LateThreshold is the instant after which a check-in counts as
// late.
type Period struct {
	Number        int       `json:"period_number"`
	Start         time.Time `json:"start_time"`
	End           time.Time `json:"end_time"`
	LateThreshold time.Time `json:"late_threshold"`
	IsCurrent     bool      `json:"is_current"`
	StatusIfNow   string    `json:"status_if_now,omitempty"`
}

// CalculatePeriods cuts [start, end) into consecutive slices of the given
// duration, numbered from 1. A remainder shorter than a full slice still
// becomes a period.
func CalculatePeriods(start, end time.Time, duration time.Duration) []Period {
	if duration <= 0 || !end.After(start) {
		return nil
	}
	periods := make([]Period, 0)
	number := 1
	for cursor := start; cursor.Before(end); cursor = cursor.Add(duration) {
		periodEnd := cursor.Add(duration)
		if periodEnd.After(end) {
			periodEnd = end
		}
		periods = append(periods, Period{Number: number, Start: cursor, End: periodEnd})
		number++
	}
	return periods
}

// CurrentPeriod returns the period containing now, or false when the class is
// not in session.
func CurrentPeriod(periods []Period, now time.Time) (Period, bool) {
	for _, p := range periods {
		if !now.Before(p.Start) && now.Before(p.End) {
			return p, true
		}
	}
	return Period{}, false
}

// AttendanceStatus reports whether checking in at now counts as present or
// late for a period: present within the threshold after its start, late
// afterwards.
func AttendanceStatus(periodStart, now time.Time, lateThreshold time.Duration) string {
	if now.After(periodStart.Add(lateThreshold)) {
		return StatusLate
	}
	return StatusPresent
}

// Annotate fills in each period's late-threshold instant, marks the period
// containing now, and computes the status a check-in at now would get.
func Annotate(periods []Period, now time.Time, lateThreshold time.Duration) []Period {
	annotated := make([]Period, len(periods))
	for i, p := range periods {
		p.LateThreshold = p.Start.Add(lateThreshold)
		p.IsCurrent = !now.Before(p.Start) && now.Before(p.End)
		if p.IsCurrent {
			p.StatusIfNow = AttendanceStatus(p.Start, now, lateThreshold)
		}
		annotated[i] = p
	}
	return annotated
}
