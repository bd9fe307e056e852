package normalize

import (
	"fmt"

	"github.com/agentstation/fundingscape/pkg/grants"
)

// Plausibility bounds for grant dates.
const (
	MinStartYear = 1950
	MaxEndYear   = 2040
)

var sentinelDates = []grants.Date{
	{Year: 1900, Month: 1, Day: 1},
	{Year: 9999, Month: 12, Day: 31},
}

func isSentinel(d grants.Date) bool {
	for _, s := range sentinelDates {
		if d == s {
			return true
		}
	}
	return false
}

// DateRange cleans a start/end pair. Placeholder dates and years outside
// [MinStartYear, MaxEndYear] are nulled and reported by field name; a
// reversed range is swapped without complaint.
func DateRange(start, end grants.Date) (grants.Date, grants.Date, map[string]string) {
	var problems map[string]string
	report := func(field, msg string) {
		if problems == nil {
			problems = make(map[string]string)
		}
		problems[field] = msg
	}

	if !start.IsZero() && isSentinel(start) {
		report("start", fmt.Sprintf("placeholder date %s", start))
		start = grants.Date{}
	}
	if !end.IsZero() && isSentinel(end) {
		report("end", fmt.Sprintf("placeholder date %s", end))
		end = grants.Date{}
	}

	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		start, end = end, start
	}

	if !start.IsZero() && start.Year < MinStartYear {
		report("start", fmt.Sprintf("year %d before %d", start.Year, MinStartYear))
		start = grants.Date{}
	}
	if !end.IsZero() && end.Year > MaxEndYear {
		report("end", fmt.Sprintf("year %d after %d", end.Year, MaxEndYear))
		end = grants.Date{}
	}
	return start, end, problems
}
