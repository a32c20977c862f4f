package models

import "time"

// DateRange is a half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// JulianRange is an inclusive day-of-year window. Start > End wraps
// through the new year (e.g. 300..60).
type JulianRange struct {
	Start int
	End   int
}

func (r JulianRange) Contains(doy int) bool {
	if r.Start <= r.End {
		return doy >= r.Start && doy <= r.End
	}
	return doy >= r.Start || doy <= r.End
}

// Period is one compositing request's calendar: the target window plus the
// wider shadow-statistics window around it.
type Period struct {
	StartYear   int
	EndYear     int
	Julian      JulianRange
	Target      DateRange
	ShadowRange DateRange
}

// NewPeriod follows the compositing calendar: the target window runs from
// Jan 1 of year + julianStart days to Jan 1 of the last year + julianEnd days.
func NewPeriod(year, length int, julian JulianRange, lookback, lookforward int) Period {
	endYear := year + length - 1
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, julian.Start)
	end := time.Date(endYear, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, julian.End)
	return Period{
		StartYear: year,
		EndYear:   endYear,
		Julian:    julian,
		Target:    DateRange{Start: start, End: end},
		ShadowRange: DateRange{
			Start: start.AddDate(-lookback, 0, 0),
			End:   end.AddDate(lookforward, 0, 0),
		},
	}
}
