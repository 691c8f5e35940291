package calendar

// Excluder reports whether a canonical YYYY-MM-DD day is closed, e.g. a public holiday
type Excluder interface {
	Contains(day string) bool
}

// Candidates returns every weekday in [start, start+horizonDays) that is not excluded,
// in ascending order. A nil excluder excludes nothing.
func Candidates(start Date, horizonDays int, closed Excluder) []Date {
	dates := make([]Date, 0, horizonDays)
	for delta := 0; delta < horizonDays; delta++ {
		d := start.AddDays(delta)
		if d.ISOWeekday() > 5 {
			continue
		}
		if closed != nil && closed.Contains(d.String()) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}
