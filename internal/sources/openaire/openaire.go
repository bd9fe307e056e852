// Package openaire searches the OpenAIRE projects API funder by funder
// and keyword by keyword. The API answers in a JSON rendering of XML where
// element text sits under "$".
package openaire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// DefaultURL is the projects search endpoint.
const DefaultURL = "https://api.openaire.eu/search/projects"

// Paging defaults. The API caps page size at 100.
const (
	DefaultPageSize = 100
	DefaultMaxPages = 50
)

// DefaultFunders are searched when no "funders" option is set. EC is left
// out because CORDIS already covers it.
var DefaultFunders = []string{"DFG", "UKRI", "NSF", "SNSF", "ANR", "FWF", "NWO", "ARC", "FCT", "SFI"}

// DefaultKeywords are searched when no "keywords" option is set.
var DefaultKeywords = []string{"quantum", "photonics", "superconducting", "cryogenic", "topological"}

// Funder describes an OpenAIRE funder short name.
type Funder struct {
	Name     string
	Country  string
	Category grants.FunderCategory
}

// Funders maps OpenAIRE funder short names to what is known about them.
var Funders = map[string]Funder{
	"DFG":     {"Deutsche Forschungsgemeinschaft", "DE", grants.FunderNationalFederal},
	"UKRI":    {"UK Research and Innovation", "GB", grants.FunderNationalFederal},
	"NSF":     {"National Science Foundation", "US", grants.FunderNationalFederal},
	"NIH":     {"National Institutes of Health", "US", grants.FunderNationalFederal},
	"SNSF":    {"Swiss National Science Foundation", "CH", grants.FunderNationalFederal},
	"ANR":     {"Agence Nationale de la Recherche", "FR", grants.FunderNationalFederal},
	"FWF":     {"Austrian Science Fund", "AT", grants.FunderNationalFederal},
	"NWO":     {"Dutch Research Council", "NL", grants.FunderNationalFederal},
	"ARC":     {"Australian Research Council", "AU", grants.FunderNationalFederal},
	"NHMRC":   {"National Health and Medical Research Council", "AU", grants.FunderNationalFederal},
	"FCT":     {"Fundação para a Ciência e a Tecnologia", "PT", grants.FunderNationalFederal},
	"SFI":     {"Science Foundation Ireland", "IE", grants.FunderNationalFederal},
	"AKA":     {"Research Council of Finland", "FI", grants.FunderNationalFederal},
	"RCN":     {"Research Council of Norway", "NO", grants.FunderNationalFederal},
	"TUBITAK": {"Scientific and Technological Research Council of Turkey", "TR", grants.FunderNationalFederal},
	"IRFD":    {"Independent Research Fund Denmark", "DK", grants.FunderNationalFederal},
	"WT":      {"Wellcome Trust", "GB", grants.FunderPrivateFoundation},
	"NNF":     {"Novo Nordisk Foundation", "DK", grants.FunderPrivateFoundation},
	"EC":      {"European Commission", "", grants.FunderSupranational},
}

// Connector implements sources.Connector for the OpenAIRE API.
type Connector struct {
	baseURL  string
	funders  []string
	keywords []string
	pageSize int
	maxPages int
}

// New configures a connector. Options: "funders" and "keywords" (comma
// lists), "page_size" and "max_pages".
func New(cfg config.SourceConfig) (*Connector, error) {
	opts := cfg.OptionReader(sources.OpenAIREID.String())
	c := &Connector{
		baseURL:  DefaultURL,
		funders:  DefaultFunders,
		keywords: DefaultKeywords,
		pageSize: opts.PositiveInt("page_size", DefaultPageSize),
		maxPages: opts.PositiveInt("max_pages", DefaultMaxPages),
	}
	if cfg.URL != "" {
		c.baseURL = cfg.URL
	}
	if l := opts.List("funders"); len(l) > 0 {
		c.funders = l
	}
	if l := opts.List("keywords"); len(l) > 0 {
		c.keywords = l
	}
	if err := opts.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// ID implements sources.Connector.
func (c *Connector) ID() sources.ID { return sources.OpenAIREID }

// Name implements sources.Connector.
func (c *Connector) Name() string { return "OpenAIRE projects API" }

// PageURL returns the search URL for one page.
func PageURL(base, keyword, funder string, page, size int) string {
	q := url.Values{}
	q.Set("keywords", keyword)
	q.Set("format", "json")
	q.Set("size", strconv.Itoa(size))
	q.Set("page", strconv.Itoa(page))
	if funder != "" {
		q.Set("funder", funder)
	}
	return base + "?" + q.Encode()
}

// Connect implements sources.Connector. A project matched by several
// keywords is yielded once. A failed page ends that keyword's paging.
func (c *Connector) Connect(ctx context.Context, f sources.Fetcher) iter.Seq2[sources.RawRecord, error] {
	return func(yield func(sources.RawRecord, error) bool) {
		seen := map[string]bool{}
		for _, funder := range c.funders {
			for _, kw := range c.keywords {
				for page := 1; page <= c.maxPages; page++ {
					if ctx.Err() != nil {
						yield(sources.RawRecord{}, ctx.Err())
						return
					}
					u := PageURL(c.baseURL, kw, funder, page, c.pageSize)
					more, ok := c.page(ctx, f, u, seen, yield)
					if !ok {
						return
					}
					if !more {
						break
					}
				}
			}
		}
	}
}

// page yields the projects of one result page. more reports whether a
// further page exists; ok is false once the consumer stopped.
func (c *Connector) page(ctx context.Context, f sources.Fetcher, u string, seen map[string]bool, yield func(sources.RawRecord, error) bool) (more, ok bool) {
	res, err := f.Fetch(ctx, cache.Request{URL: u, Source: c.ID().String()})
	if err != nil {
		return false, yield(sources.RawRecord{Locator: u}, err)
	}
	var body searchResponse
	if err := json.Unmarshal(res.Payload, &body); err != nil {
		return false, yield(sources.RawRecord{Locator: u}, errors.NewParseError("json", u, "decode page", err))
	}

	results := body.Response.Results.Result
	for i, r := range results {
		p := r.project()
		key := p.localID()
		if key != "" {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		rec := sources.RawRecord{Locator: fmt.Sprintf("%s#%d", u, i), Value: p}
		if !yield(rec, nil) {
			return false, false
		}
	}

	total, _ := strconv.Atoi(string(body.Response.Header.Total))
	page, _ := strconv.Atoi(string(body.Response.Header.Page))
	if page == 0 {
		page = pageOf(u)
	}
	return len(results) > 0 && page*c.pageSize < total, true
}

func pageOf(u string) int {
	parsed, err := url.Parse(u)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(parsed.Query().Get("page"))
	return n
}

// Normalize implements sources.Connector.
func (c *Connector) Normalize(rec sources.RawRecord) (sources.Shape, []error) {
	p, ok := rec.Value.(Project)
	if !ok {
		return sources.Shape{}, []error{errors.NewRejectionError(c.ID().String(), rec.Locator, "project")}
	}
	localID := p.localID()
	problems := sources.NewProblems(c.ID(), localID)
	if !problems.Require("source_id", localID) || !problems.Require("title", p.Title) {
		return sources.Shape{}, problems.Errors()
	}

	amount := ""
	if nonZero(p.FundedAmount) {
		amount = p.FundedAmount
	} else if nonZero(p.TotalCost) {
		amount = p.TotalCost
	}

	shape := sources.Shape{
		Kind:      sources.KindGrant,
		LocalID:   localID,
		ProjectID: p.Code,
		Title:     p.Title,
		Acronym:   p.Acronym,
		Abstract:  p.Summary,
		Start:     problems.Date("start_date", p.StartDate),
		End:       problems.Date("end_date", p.EndDate),
		Amount:    amount,
		Currency:  p.Currency,
		Keywords:  []string{p.FunderShort, p.CollectedFrom},
	}
	if p.FunderShort != "" {
		known := Funders[p.FunderShort]
		name := p.FunderName
		if name == "" {
			name = known.Name
		}
		if name == "" {
			name = p.FunderShort
		}
		shape.PICountry = known.Country
		shape.Funder = &sources.FunderRef{
			Name:      name,
			ShortName: p.FunderShort,
			Country:   known.Country,
			Category:  known.Category,
		}
		if p.Stream != "" {
			shape.Instrument = &sources.InstrumentRef{Name: p.Stream}
		}
	}
	return shape, problems.Errors()
}

func nonZero(amount string) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	return err == nil && v != 0
}

// Project is the flattened form of one search result.
type Project struct {
	ObjectID      string
	Code          string
	Title         string
	Acronym       string
	Summary       string
	StartDate     string
	EndDate       string
	FundedAmount  string
	TotalCost     string
	Currency      string
	CollectedFrom string
	FunderShort   string
	FunderName    string
	Stream        string
}

func (p Project) localID() string {
	if p.FunderShort != "" && p.Code != "" {
		return "openaire_" + p.FunderShort + "_" + p.Code
	}
	if p.ObjectID != "" {
		id := p.ObjectID
		if len(id) > 20 {
			id = id[:20]
		}
		return "openaire_" + id
	}
	return ""
}

type searchResponse struct {
	Response struct {
		Header struct {
			Total text `json:"total"`
			Page  text `json:"page"`
		} `json:"header"`
		Results struct {
			Result oneOrMany[result] `json:"result"`
		} `json:"results"`
	} `json:"response"`
}

type result struct {
	Header struct {
		ObjIdentifier text `json:"dri:objIdentifier"`
	} `json:"header"`
	Metadata struct {
		Entity struct {
			Project projectEntity `json:"oaf:project"`
		} `json:"oaf:entity"`
	} `json:"metadata"`
}

type projectEntity struct {
	Code          text `json:"code"`
	Title         text `json:"title"`
	Acronym       text `json:"acronym"`
	Summary       text `json:"summary"`
	StartDate     text `json:"startdate"`
	EndDate       text `json:"enddate"`
	FundedAmount  text `json:"fundedamount"`
	TotalCost     text `json:"totalcost"`
	Currency      text `json:"currency"`
	CollectedFrom struct {
		Name string `json:"@name"`
	} `json:"collectedfrom"`
	FundingTree oneOrMany[fundingTree] `json:"fundingtree"`
}

type fundingTree struct {
	Funder struct {
		ShortName text `json:"shortname"`
		Name      text `json:"name"`
	} `json:"funder"`
	Level0 struct {
		Name text `json:"name"`
	} `json:"funding_level_0"`
}

func (r result) project() Project {
	e := r.Metadata.Entity.Project
	p := Project{
		ObjectID:      string(r.Header.ObjIdentifier),
		Code:          string(e.Code),
		Title:         string(e.Title),
		Acronym:       string(e.Acronym),
		Summary:       string(e.Summary),
		StartDate:     string(e.StartDate),
		EndDate:       string(e.EndDate),
		FundedAmount:  string(e.FundedAmount),
		TotalCost:     string(e.TotalCost),
		Currency:      string(e.Currency),
		CollectedFrom: e.CollectedFrom.Name,
	}
	if len(e.FundingTree) > 0 {
		tree := e.FundingTree[0]
		p.FunderShort = string(tree.Funder.ShortName)
		p.FunderName = string(tree.Funder.Name)
		p.Stream = string(tree.Level0.Name)
	}
	return p
}

// text decodes an element that is either {"$": value} or a bare value.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var wrapped struct {
			Value json.RawMessage `json:"$"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		b = wrapped.Value
	}
	switch {
	case len(b) == 0 || string(b) == "null":
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(strings.TrimSpace(s))
	default:
		*t = text(b)
	}
	return nil
}

// oneOrMany decodes an element that repeats as a list but appears as a
// single object when there is only one.
type oneOrMany[T any] []T

func (m *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*m = nil
		return nil
	case b[0] == '[':
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*m = many
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*m = oneOrMany[T]{one}
	return nil
}
