// Package manual loads hand-curated calls and instruments from a YAML
// file, for funders that publish neither an API nor a dump.
//
// The file looks like:
//
//	instruments:
//	  - name: ERC Starting Grant
//	    funder: {name: European Research Council, short_name: ERC, category: supranational}
//	    recurrence: annual
//	    deadline_policy: fixed
//	    max_amount: 1500000
//	calls:
//	  - id: ERC-2026-STG
//	    title: ERC Starting Grant 2026
//	    instrument: ERC Starting Grant
//	    opening_date: "2025-07-10"
//	    deadline: "2025-10-14"
//	    budget: 550000000
package manual

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/constants"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// File is the curated document.
type File struct {
	Instruments []Instrument `yaml:"instruments"`
	Calls       []Call       `yaml:"calls"`
}

// Funder is a curated funder.
type Funder struct {
	Name      string `yaml:"name"`
	ShortName string `yaml:"short_name"`
	Country   string `yaml:"country"`
	Category  string `yaml:"category"`
}

// Instrument is a curated funding instrument, referenced by name from calls.
type Instrument struct {
	Name           string  `yaml:"name"`
	Funder         *Funder `yaml:"funder"`
	Recurrence     string  `yaml:"recurrence"`
	DeadlinePolicy string  `yaml:"deadline_policy"`
	MinAmount      any     `yaml:"min_amount"`
	MaxAmount      any     `yaml:"max_amount"`
	Currency       string  `yaml:"currency"`
	URL            string  `yaml:"url"`
}

// Call is a curated call for proposals.
type Call struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	OpeningDate string   `yaml:"opening_date"`
	Deadline    string   `yaml:"deadline"`
	Status      string   `yaml:"status"`
	Budget      any      `yaml:"budget"`
	Currency    string   `yaml:"currency"`
	Keywords    []string `yaml:"keywords"`
	Programme   string   `yaml:"programme"`
	Instrument  string   `yaml:"instrument"`
	Funder      *Funder  `yaml:"funder"`
}

// entry is what Connect yields: a call with its instrument resolved.
type entry struct {
	Call       Call
	Instrument *Instrument
}

// Connector implements sources.Connector for the curated file.
type Connector struct {
	url string
}

// New configures a connector reading cfg.URL, or the default manual path
// as a file:// URL.
func New(cfg config.SourceConfig) (*Connector, error) {
	if err := cfg.OptionReader(sources.ManualID.String()).Err(); err != nil {
		return nil, err
	}
	u := cfg.URL
	if u == "" {
		u = FileURL(constants.DefaultManualPath)
	}
	return &Connector{url: u}, nil
}

// FileURL turns a local path into a file:// URL.
func FileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + filepath.ToSlash(path)
}

// ID implements sources.Connector.
func (c *Connector) ID() sources.ID { return sources.ManualID }

// Name implements sources.Connector.
func (c *Connector) Name() string { return "Manual entries" }

// Connect implements sources.Connector.
func (c *Connector) Connect(ctx context.Context, f sources.Fetcher) iter.Seq2[sources.RawRecord, error] {
	return func(yield func(sources.RawRecord, error) bool) {
		res, err := f.Fetch(ctx, cache.Request{URL: c.url, Source: c.ID().String()})
		if err != nil {
			yield(sources.RawRecord{Locator: c.url}, err)
			return
		}
		if len(bytes.TrimSpace(res.Payload)) == 0 {
			return
		}
		var doc File
		if err := yaml.Unmarshal(res.Payload, &doc); err != nil {
			yield(sources.RawRecord{Locator: c.url}, errors.NewParseError("yaml", c.url, "decode", err))
			return
		}

		instruments := make(map[string]*Instrument, len(doc.Instruments))
		for i := range doc.Instruments {
			instruments[strings.ToLower(strings.TrimSpace(doc.Instruments[i].Name))] = &doc.Instruments[i]
		}
		for i, call := range doc.Calls {
			e := entry{Call: call, Instrument: instruments[strings.ToLower(strings.TrimSpace(call.Instrument))]}
			if !yield(sources.RawRecord{Locator: fmt.Sprintf("%s#calls[%d]", c.url, i), Value: e}, nil) {
				return
			}
		}
	}
}

// Normalize implements sources.Connector. A call without an id is keyed by
// the first 30 characters of its title.
func (c *Connector) Normalize(rec sources.RawRecord) (sources.Shape, []error) {
	e, ok := rec.Value.(entry)
	if !ok {
		return sources.Shape{}, []error{errors.NewRejectionError(c.ID().String(), rec.Locator, "call")}
	}
	call := e.Call
	key := strings.TrimSpace(call.ID)
	if key == "" {
		key = strings.TrimSpace(call.Title)
		if r := []rune(key); len(r) > 30 {
			key = string(r[:30])
		}
	}
	localID := ""
	if key != "" {
		localID = "manual_" + key
	}
	problems := sources.NewProblems(c.ID(), localID)
	if !problems.Require("title", call.Title) {
		return sources.Shape{}, problems.Errors()
	}

	status := call.Status
	if status == "" {
		status = "open"
	}
	shape := sources.Shape{
		Kind:           sources.KindCall,
		LocalID:        localID,
		Title:          call.Title,
		CallIdentifier: call.ID,
		Description:    call.Description,
		URL:            call.URL,
		Opening:        problems.Date("opening_date", call.OpeningDate),
		Deadline:       problems.Date("deadline", call.Deadline),
		Status:         status,
		Amount:         number(call.Budget),
		Currency:       call.Currency,
		Keywords:       call.Keywords,
		Programme:      call.Programme,
		Funder:         funderRef(call.Funder),
	}

	if call.Instrument != "" && e.Instrument == nil {
		problems.Add("instrument", call.Instrument, "not declared under instruments")
	}
	if inst := e.Instrument; inst != nil {
		shape.Instrument = &sources.InstrumentRef{
			Name:           inst.Name,
			Recurrence:     grants.Recurrence(inst.Recurrence),
			DeadlinePolicy: grants.DeadlinePolicy(inst.DeadlinePolicy),
			MinAmount:      number(inst.MinAmount),
			MaxAmount:      number(inst.MaxAmount),
			Currency:       inst.Currency,
			URL:            inst.URL,
		}
		if shape.Funder == nil {
			shape.Funder = funderRef(inst.Funder)
		}
	}
	return shape, problems.Errors()
}

func funderRef(f *Funder) *sources.FunderRef {
	if f == nil || f.Name == "" {
		return nil
	}
	return &sources.FunderRef{
		Name:      f.Name,
		ShortName: f.ShortName,
		Country:   f.Country,
		Category:  grants.FunderCategory(f.Category),
	}
}

// number renders a YAML scalar amount as text for the normalizer.
func number(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprint(n)
	}
}
