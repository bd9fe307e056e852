// Package ftportal reads open, forthcoming and closed calls from the EU
// Funding & Tenders Portal reference data dump.
package ftportal

import (
	"context"
	"encoding/json"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// DefaultURL is the portal's grants and tenders dump.
const DefaultURL = "https://ec.europa.eu/info/funding-tenders/opportunities/data/referenceData/grantsTenders.json"

// TopicURL is the public page of a topic, by identifier.
const TopicURL = "https://ec.europa.eu/info/funding-tenders/opportunities/portal/screen/opportunities/topic-details/"

// DefaultProgrammes are the framework programme prefixes kept by default.
var DefaultProgrammes = []string{"HORIZON", "HE", "H2020", "ERC", "MSCA", "EIC", "EURATOM", "COST", "ERASMUS+"}

type document struct {
	FundingData struct {
		GrantTenderObj []Topic `json:"GrantTenderObj"`
	} `json:"fundingData"`
}

// Topic is one call topic of the dump. Dates are epoch milliseconds.
type Topic struct {
	CCM2ID             any          `json:"ccm2Id"`
	Identifier         string       `json:"identifier"`
	Title              string       `json:"title"`
	CallIdentifier     string       `json:"callIdentifier"`
	CallTitle          string       `json:"callTitle"`
	PlannedOpeningDate any          `json:"plannedOpeningDateLong"`
	DeadlineDates      []any        `json:"deadlineDatesLong"`
	FrameworkProgramme *Abbreviated `json:"frameworkProgramme"`
	Status             *Abbreviated `json:"status"`
	Tags               []any        `json:"tags"`
}

// Abbreviated is the portal's shape for enumerated values.
type Abbreviated struct {
	Abbreviation string `json:"abbreviation"`
	Description  string `json:"description"`
}

// Connector implements sources.Connector for the portal.
type Connector struct {
	url        string
	programmes []string
}

// New configures a connector. The "programmes" option replaces
// DefaultProgrammes; "*" keeps every topic.
func New(cfg config.SourceConfig) (*Connector, error) {
	c := &Connector{url: DefaultURL, programmes: DefaultProgrammes}
	if cfg.URL != "" {
		c.url = cfg.URL
	}
	opts := cfg.OptionReader(sources.FTPortalID.String())
	if p := opts.List("programmes"); p != nil {
		c.programmes = p
		if slices.Equal(p, []string{"*"}) {
			c.programmes = nil
		}
	}
	if err := opts.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// ID implements sources.Connector.
func (c *Connector) ID() sources.ID { return sources.FTPortalID }

// Name implements sources.Connector.
func (c *Connector) Name() string { return "EU Funding & Tenders Portal" }

// Connect implements sources.Connector. Topics outside the configured
// programmes are skipped without being yielded.
func (c *Connector) Connect(ctx context.Context, f sources.Fetcher) iter.Seq2[sources.RawRecord, error] {
	return func(yield func(sources.RawRecord, error) bool) {
		res, err := f.Fetch(ctx, cache.Request{URL: c.url, Source: c.ID().String()})
		if err != nil {
			yield(sources.RawRecord{Locator: c.url}, err)
			return
		}
		var doc document
		if err := json.Unmarshal(res.Payload, &doc); err != nil {
			yield(sources.RawRecord{Locator: c.url}, errors.NewParseError("json", c.url, "decode dump", err))
			return
		}
		for i, topic := range doc.FundingData.GrantTenderObj {
			if !c.relevant(topic) {
				continue
			}
			rec := sources.RawRecord{Locator: c.url + "#" + strconv.Itoa(i), Value: topic}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (c *Connector) relevant(t Topic) bool {
	if len(c.programmes) == 0 {
		return true
	}
	fp := ""
	if t.FrameworkProgramme != nil {
		fp = t.FrameworkProgramme.Abbreviation
	}
	for _, prefix := range c.programmes {
		if strings.HasPrefix(fp, prefix) {
			return true
		}
	}
	return false
}

// Normalize implements sources.Connector.
func (c *Connector) Normalize(rec sources.RawRecord) (sources.Shape, []error) {
	t, ok := rec.Value.(Topic)
	if !ok {
		return sources.Shape{}, []error{errors.NewRejectionError(c.ID().String(), rec.Locator, "topic")}
	}
	localID := idString(t.CCM2ID)
	if localID == "" {
		localID = t.Identifier
	}
	problems := sources.NewProblems(c.ID(), localID)
	if !problems.Require("source_id", localID) {
		return sources.Shape{}, problems.Errors()
	}

	// A topic without a status object is treated as closed.
	status := "closed"
	if t.Status != nil && t.Status.Abbreviation != "" {
		status = t.Status.Abbreviation
	}

	var deadline grants.Date
	for _, raw := range t.DeadlineDates {
		d := problems.EpochMillis("deadline", raw)
		if d.IsZero() {
			continue
		}
		if deadline.IsZero() || d.Before(deadline) {
			deadline = d
		}
	}

	shape := sources.Shape{
		Kind:           sources.KindCall,
		LocalID:        localID,
		Title:          t.Title,
		CallIdentifier: t.Identifier,
		Description:    t.CallTitle,
		Opening:        problems.EpochMillis("opening_date", t.PlannedOpeningDate),
		Deadline:       deadline,
		Status:         status,
		Keywords:       tags(t.Tags),
		Funder: &sources.FunderRef{
			Name:      "European Commission",
			ShortName: "EC",
			Category:  grants.FunderSupranational,
		},
	}
	if t.Identifier != "" {
		shape.URL = TopicURL + t.Identifier
	}
	if fp := t.FrameworkProgramme; fp != nil {
		shape.Programme = fp.Abbreviation
		name := fp.Description
		if name == "" {
			name = fp.Abbreviation
		}
		if name != "" {
			shape.Instrument = &sources.InstrumentRef{
				Name:           name,
				Recurrence:     grants.RecurrenceAnnual,
				DeadlinePolicy: grants.DeadlineFixed,
			}
		}
	}
	return shape, problems.Errors()
}

func idString(v any) string {
	switch id := v.(type) {
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case string:
		return strings.TrimSpace(id)
	}
	return ""
}

// tags keeps the string entries of the portal's loosely typed tag list.
func tags(raw []any) []string {
	var out []string
	for _, t := range raw {
		if s, ok := t.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
