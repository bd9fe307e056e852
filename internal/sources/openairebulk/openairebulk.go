// Package openairebulk reads the OpenAIRE Graph project dump: a tar of
// gzipped JSON-lines files, one project per line, from every funder.
package openairebulk

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// DefaultURL is the Zenodo record of the project dump.
const DefaultURL = "https://zenodo.org/api/records/17725827/files/project.tar/content"

// maxLine bounds one JSON line; project summaries can be long.
const maxLine = 4 << 20

// Project is one line of the dump.
type Project struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Acronym   string    `json:"acronym"`
	Title     string    `json:"title"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Keywords  string    `json:"keywords"`
	Summary   string    `json:"summary"`
	Website   string    `json:"websiteUrl"`
	Fundings  []Funding `json:"fundings"`
	Granted   *Granted  `json:"granted"`
}

// Funding names one funder of a project.
type Funding struct {
	ShortName     string `json:"shortName"`
	Name          string `json:"name"`
	Jurisdiction  string `json:"jurisdiction"`
	FundingStream *struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	} `json:"fundingStream"`
}

// Granted is the awarded amount.
type Granted struct {
	Currency     string   `json:"currency"`
	TotalCost    *float64 `json:"totalCost"`
	FundedAmount *float64 `json:"fundedAmount"`
}

// Connector implements sources.Connector for the OpenAIRE dump.
type Connector struct {
	url string
}

// New configures a connector; cfg.URL replaces DefaultURL.
func New(cfg config.SourceConfig) (*Connector, error) {
	if err := cfg.OptionReader(sources.OpenAIREBulkID.String()).Err(); err != nil {
		return nil, err
	}
	c := &Connector{url: DefaultURL}
	if cfg.URL != "" {
		c.url = cfg.URL
	}
	return c, nil
}

// ID implements sources.Connector.
func (c *Connector) ID() sources.ID { return sources.OpenAIREBulkID }

// Name implements sources.Connector.
func (c *Connector) Name() string { return "OpenAIRE Graph project dump" }

// Connect implements sources.Connector.
func (c *Connector) Connect(ctx context.Context, f sources.Fetcher) iter.Seq2[sources.RawRecord, error] {
	return func(yield func(sources.RawRecord, error) bool) {
		res, err := f.Fetch(ctx, cache.Request{URL: c.url, Source: c.ID().String()})
		if err != nil {
			yield(sources.RawRecord{Locator: c.url}, err)
			return
		}

		tr := tar.NewReader(bytes.NewReader(res.Payload))
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(sources.RawRecord{Locator: c.url}, errors.NewParseError("tar", c.url, "read archive", err))
				return
			}
			if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".gz") {
				continue
			}
			if !readMember(ctx, hdr.Name, tr, yield) {
				return
			}
		}
	}
}

// readMember yields one project per line of a gzipped member. Undecodable
// lines are yielded as raw text so that they count as rejected records.
func readMember(ctx context.Context, name string, r io.Reader, yield func(sources.RawRecord, error) bool) bool {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return yield(sources.RawRecord{Locator: name}, errors.NewParseError("gzip", name, "open member", err))
	}
	defer func() { _ = gz.Close() }()

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	for line := 1; sc.Scan(); line++ {
		if ctx.Err() != nil {
			return yield(sources.RawRecord{Locator: name}, ctx.Err())
		}
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		rec := sources.RawRecord{Locator: fmt.Sprintf("%s:%d", name, line)}
		var p Project
		if err := json.Unmarshal(text, &p); err != nil {
			rec.Value = string(text)
		} else {
			rec.Value = p
		}
		if !yield(rec, nil) {
			return false
		}
	}
	if err := sc.Err(); err != nil {
		return yield(sources.RawRecord{Locator: name}, errors.NewParseError("jsonl", name, "scan", err))
	}
	return true
}

// Normalize implements sources.Connector.
func (c *Connector) Normalize(rec sources.RawRecord) (sources.Shape, []error) {
	p, ok := rec.Value.(Project)
	if !ok {
		return sources.Shape{}, []error{errors.NewRejectionError(c.ID().String(), rec.Locator, "json")}
	}

	var funding Funding
	if len(p.Fundings) > 0 {
		funding = p.Fundings[0]
	}
	code := p.Code
	if code == "unidentified" {
		code = ""
	}
	localID := ""
	switch {
	case code != "":
		localID = "oaire_" + funding.ShortName + "_" + code
	case p.ID != "":
		localID = "oaire_" + truncate(p.ID, 24)
	}

	problems := sources.NewProblems(c.ID(), localID)
	if !problems.Require("source_id", localID) {
		return sources.Shape{}, problems.Errors()
	}
	title := p.Title
	if strings.EqualFold(strings.TrimSpace(title), "unidentified") {
		title = ""
	}
	if !problems.Require("title", title) {
		return sources.Shape{}, problems.Errors()
	}

	shape := sources.Shape{
		Kind:      sources.KindGrant,
		LocalID:   localID,
		ProjectID: code,
		Title:     title,
		Acronym:   p.Acronym,
		Abstract:  p.Summary,
		PICountry: funding.Jurisdiction,
		Start:     problems.Date("start_date", p.StartDate),
		End:       problems.Date("end_date", p.EndDate),
		URL:       p.Website,
		Keywords:  append([]string{funding.ShortName}, strings.Split(p.Keywords, ";")...),
	}
	if g := p.Granted; g != nil {
		shape.Currency = g.Currency
		switch {
		case g.FundedAmount != nil && *g.FundedAmount > 0:
			shape.Amount = formatAmount(*g.FundedAmount)
		case g.TotalCost != nil && *g.TotalCost > 0:
			shape.Amount = formatAmount(*g.TotalCost)
		}
	}
	if funding.Name != "" {
		shape.Funder = &sources.FunderRef{
			Name:      funding.Name,
			ShortName: funding.ShortName,
			Country:   funding.Jurisdiction,
		}
		if funding.FundingStream != nil && funding.FundingStream.Description != "" {
			shape.Instrument = &sources.InstrumentRef{Name: funding.FundingStream.Description}
		}
	}
	return shape, problems.Errors()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
