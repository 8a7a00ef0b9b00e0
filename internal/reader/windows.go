package reader

import "time"

const daysPerWeek = 7

// Window is a half-open read range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Windows splits Jan 1 of endDate's year through endDate into 7-day windows.
//
// There are weeks+1 windows, where weeks is the number of whole weeks between
// Jan 1 and endDate. A window that would run past endDate is cut at the start of
// the following day, so endDate itself is always covered. Boundaries are local
// midnights in endDate's location.
func Windows(endDate time.Time) []Window {
	loc := endDate.Location()
	y, m, d := endDate.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, loc)
	start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)

	weeks := civilDaysBetween(start, end) / daysPerWeek
	windows := make([]Window, 0, weeks+1)
	for i := range weeks + 1 {
		ws := start.AddDate(0, 0, i*daysPerWeek)
		we := ws.AddDate(0, 0, daysPerWeek)
		if we.After(end) {
			we = end.AddDate(0, 0, 1)
		}
		windows = append(windows, Window{Start: ws, End: we})
	}
	return windows
}

// civilDaysBetween counts calendar days, ignoring DST shifts in the location.
func civilDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24) //nolint:mnd // hours per day
}

// String renders the window as dates, e.g. "2026-01-01..2026-01-08".
func (w Window) String() string {
	return w.Start.Format(time.DateOnly) + ".." + w.End.Format(time.DateOnly)
}
