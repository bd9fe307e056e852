package output

import (
	"cmp"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/utc"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// Longest old/new value shown in a change table cell.
const maxValueWidth = 40

var title = cases.Title(language.English)

// RunResults shapes per-source run results.
func RunResults(results []*sources.RunResult) Data {
	data := Data{
		Headers: []string{"Source", "Health", "In", "Normalized", "Rejected", "Fetches", "Changed", "Duration", "Message"},
		ColumnAlignment: []Align{
			AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight, AlignRight, AlignLeft, AlignRight, AlignLeft,
		},
	}
	for _, r := range results {
		data.Rows = append(data.Rows, []string{
			r.Source.String(),
			string(r.Health),
			strconv.Itoa(r.RecordsIn),
			strconv.Itoa(r.RecordsNormalized),
			strconv.Itoa(r.RecordsRejected),
			strconv.Itoa(r.Fetches),
			yesNo(r.Changed),
			r.Duration.Round(time.Millisecond).String(),
			r.Message,
		})
	}
	return data
}

// Changes shapes change-log entries.
func Changes(entries []grants.ChangeLogEntry) Data {
	data := Data{
		Headers:         []string{"Seq", "Kind", "Entity", "ID", "Field", "Old", "New", "Detected"},
		ColumnAlignment: []Align{AlignRight},
	}
	for _, e := range entries {
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(e.Seq, 10),
			title.String(string(e.Kind)),
			string(e.EntityType),
			e.EntityID,
			e.Field,
			truncate(e.OldValue),
			truncate(e.NewValue),
			timestamp(&e.DetectedAt),
		})
	}
	return data
}

// SourceRuns shapes per-source bookkeeping.
func SourceRuns(records []grants.SourceRunRecord) Data {
	data := Data{
		Headers:         []string{"Source", "Health", "Records", "Last Fetch", "Last Success", "Message"},
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignRight},
	}
	for _, r := range records {
		data.Rows = append(data.Rows, []string{
			r.Source,
			string(r.Health),
			strconv.Itoa(r.RecordCount),
			timestamp(r.LastFetch),
			timestamp(r.LastSuccess),
			r.Message,
		})
	}
	return data
}

// Clusters shapes canonical grants.
func Clusters(clusters []grants.CanonicalGrant) Data {
	data := Data{
		Headers:         []string{"ID", "Size", "Primary", "Aliases"},
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
	for _, c := range clusters {
		aliases := make([]string, len(c.Aliases))
		for i, a := range c.Aliases {
			aliases[i] = a.String()
		}
		data.Rows = append(data.Rows, []string{
			c.ID,
			strconv.Itoa(c.Size()),
			c.Primary.String(),
			strings.Join(aliases, ", "),
		})
	}
	return data
}

// CoalescedGrants shapes canonical grants with their merged awards.
func CoalescedGrants(clusters []grants.CoalescedGrant) Data {
	data := Data{
		Headers:         []string{"ID", "Size", "Primary", "Title", "Amount", "PI Country"},
		ColumnAlignment: []Align{AlignLeft, AlignRight, AlignLeft, AlignLeft, AlignRight},
	}
	for _, c := range clusters {
		amount := "-"
		if c.Award.Amount != nil {
			amount = c.Award.Amount.String()
		}
		data.Rows = append(data.Rows, []string{
			c.ID,
			strconv.Itoa(c.Size()),
			c.Primary.String(),
			truncate(c.Award.Title),
			amount,
			cmp.Or(c.Award.PI.Country, "-"),
		})
	}
	return data
}

func timestamp(t *utc.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Time.Format(time.RFC3339)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxValueWidth {
		return s
	}
	return string(r[:maxValueWidth-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
