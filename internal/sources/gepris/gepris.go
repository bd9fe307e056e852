// Package gepris scrapes DFG-funded projects from GEPRIS: a keyword search
// page lists project links, and each project's detail page carries the
// fields.
package gepris

import (
	"bytes"
	"context"
	"iter"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// DefaultBaseURL is the GEPRIS host.
const DefaultBaseURL = "https://gepris.dfg.de"

// DefaultResultsPerPage bounds one keyword search.
const DefaultResultsPerPage = 500

// DefaultKeywords are searched when no "keywords" option is set.
var DefaultKeywords = []string{
	"quantum computing",
	"quantum information",
	"topological quantum",
	"many-body quantum",
	"quantum entanglement",
	"quantum error correction",
	"Quantencomputer",
	"Quanteninformation",
}

var (
	projectLink = regexp.MustCompile(`/gepris/projekt/(\d+)`)
	termYears   = regexp.MustCompile(`(\d{4})\s*(?:to|until|bis|-|–)\s*(\d{4})`)
	euroAmount  = regexp.MustCompile(`([\d.,]+)\s*(?:EUR|€)`)
)

// Detail labels, English first.
var (
	applicantLabels   = []string{"Applicant", "Spokesperson", "Antragsteller", "Sprecher"}
	institutionLabels = []string{"Institution", "Applicant Institution", "Einrichtung", "Antragstellende Institution"}
	termLabels        = []string{"Term", "Förderung"}
	programmeLabels   = []string{"DFG Programme", "DFG-Verfahren"}
	subjectLabels     = []string{"Subject Area", "Fachliche Zuordnung", "Fachgebiet"}
	fundingLabels     = []string{"Overall Funding", "Funding", "Gesamtförderung", "DFG Programme"}
)

// Hit is one search result.
type Hit struct {
	ID    string
	Title string
}

// Project is a parsed detail page, or a bare search hit when details are
// disabled.
type Project struct {
	Hit
	Title    string
	Abstract string
	Details  map[string]string
}

// Connector implements sources.Connector for GEPRIS.
type Connector struct {
	baseURL  string
	keywords []string
	perPage  int
	details  bool
}

// New configures a connector. Options: "keywords" (comma list),
// "results_per_page", and "details" ("false" skips detail pages).
func New(cfg config.SourceConfig) (*Connector, error) {
	opts := cfg.OptionReader(sources.GEPRISID.String())
	c := &Connector{
		baseURL:  DefaultBaseURL,
		keywords: DefaultKeywords,
		perPage:  opts.PositiveInt("results_per_page", DefaultResultsPerPage),
		details:  opts.Bool("details", true),
	}
	if cfg.URL != "" {
		c.baseURL = strings.TrimSuffix(cfg.URL, "/")
	}
	if kw := opts.List("keywords"); len(kw) > 0 {
		c.keywords = kw
	}
	if err := opts.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// ID implements sources.Connector.
func (c *Connector) ID() sources.ID { return sources.GEPRISID }

// Name implements sources.Connector.
func (c *Connector) Name() string { return "DFG GEPRIS" }

// SearchURL returns the search page URL for keyword.
func (c *Connector) SearchURL(keyword string) string {
	q := url.Values{}
	q.Set("task", "doSearchSimple")
	q.Set("context", "projekt")
	q.Set("keywords_criterion", keyword)
	q.Set("results_per_page", strconv.Itoa(c.perPage))
	q.Set("language", "en")
	return c.baseURL + "/gepris/OCTOPUS?" + q.Encode()
}

// ProjectURL returns the detail page URL of a project.
func (c *Connector) ProjectURL(id string) string {
	return c.baseURL + "/gepris/projekt/" + id + "?language=en"
}

// Connect implements sources.Connector. All searches run first so that a
// project matched by several keywords costs one detail request.
func (c *Connector) Connect(ctx context.Context, f sources.Fetcher) iter.Seq2[sources.RawRecord, error] {
	return func(yield func(sources.RawRecord, error) bool) {
		var hits []Hit
		seen := map[string]bool{}
		for _, kw := range c.keywords {
			u := c.SearchURL(kw)
			res, err := f.Fetch(ctx, cache.Request{URL: u, Source: c.ID().String()})
			if err != nil {
				if !yield(sources.RawRecord{Locator: u}, err) {
					return
				}
				continue
			}
			found, err := ParseSearch(res.Payload)
			if err != nil {
				if !yield(sources.RawRecord{Locator: u}, errors.NewParseError("html", u, "parse search page", err)) {
					return
				}
				continue
			}
			for _, h := range found {
				if !seen[h.ID] {
					seen[h.ID] = true
					hits = append(hits, h)
				}
			}
		}

		for _, h := range hits {
			if ctx.Err() != nil {
				yield(sources.RawRecord{}, ctx.Err())
				return
			}
			if !c.details {
				if !yield(sources.RawRecord{Locator: h.ID, Value: Project{Hit: h, Title: h.Title}}, nil) {
					return
				}
				continue
			}
			u := c.ProjectURL(h.ID)
			res, err := f.Fetch(ctx, cache.Request{URL: u, Source: c.ID().String()})
			if err != nil {
				if !yield(sources.RawRecord{Locator: u}, err) {
					return
				}
				continue
			}
			p, err := ParseProject(h, res.Payload)
			if err != nil {
				err = errors.NewParseError("html", u, "parse project page", err)
			}
			if !yield(sources.RawRecord{Locator: u, Value: p}, err) {
				return
			}
		}
	}
}

// ParseSearch extracts the project links of a search page.
func ParseSearch(page []byte) ([]Hit, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	var hits []Hit
	seen := map[string]bool{}
	walk(doc, func(n *html.Node) bool {
		if !isElement(n, "a") {
			return true
		}
		m := projectLink.FindStringSubmatch(attr(n, "href"))
		if m == nil || seen[m[1]] {
			return false
		}
		seen[m[1]] = true
		hits = append(hits, Hit{ID: m[1], Title: textOf(n)})
		return false
	})
	return hits, nil
}

// ParseProject extracts the title, abstract and labelled fields of a
// detail page. Labels come from dt/dd pairs and from span.name elements
// followed by their value.
func ParseProject(h Hit, page []byte) (Project, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return Project{}, err
	}
	p := Project{Hit: h, Details: map[string]string{}}
	walk(doc, func(n *html.Node) bool {
		switch {
		case isElement(n, "h1") && p.Title == "":
			p.Title = textOf(n)
		case isElement(n, "dt"):
			if dd := nextElement(n); dd != nil && isElement(dd, "dd") {
				p.Details[label(n)] = textOf(dd)
			}
		case isElement(n, "span") && hasClass(n, "name"):
			if v := nextElement(n); v != nil {
				p.Details[label(n)] = textOf(v)
			}
		case p.Abstract == "" && (attr(n, "id") == "projektbeschreibung" || hasClass(n, "abstract")):
			p.Abstract = textOf(n)
			return false
		}
		return true
	})
	if p.Title == "" {
		p.Title = h.Title
	}
	return p, nil
}

func (p Project) detail(labels []string) string {
	for _, l := range labels {
		if v := p.Details[l]; v != "" {
			return v
		}
	}
	return ""
}

// Normalize implements sources.Connector.
func (c *Connector) Normalize(rec sources.RawRecord) (sources.Shape, []error) {
	p, ok := rec.Value.(Project)
	if !ok {
		return sources.Shape{}, []error{errors.NewRejectionError(c.ID().String(), rec.Locator, "page")}
	}
	localID := ""
	if p.ID != "" {
		localID = "gepris_" + p.ID
	}
	problems := sources.NewProblems(c.ID(), localID)
	if !problems.Require("source_id", localID) || !problems.Require("title", p.Title) {
		return sources.Shape{}, problems.Errors()
	}

	shape := sources.Shape{
		Kind:          sources.KindGrant,
		LocalID:       localID,
		ProjectID:     p.ID,
		Title:         p.Title,
		Abstract:      p.Abstract,
		PIName:        p.detail(applicantLabels),
		PIInstitution: p.detail(institutionLabels),
		PICountry:     "DE",
		Funder: &sources.FunderRef{
			Name:      "Deutsche Forschungsgemeinschaft",
			ShortName: "DFG",
			Country:   "DE",
			Category:  grants.FunderNationalFederal,
		},
	}
	if term := p.detail(termLabels); term != "" {
		if m := termYears.FindStringSubmatch(term); m != nil {
			start, _ := strconv.Atoi(m[1])
			end, _ := strconv.Atoi(m[2])
			shape.Start = grants.NewDate(start, 1, 1)
			shape.End = grants.NewDate(end, 12, 31)
		} else {
			problems.Add("term", term, "no year range")
		}
	}
	for _, l := range fundingLabels {
		if m := euroAmount.FindStringSubmatch(p.Details[l]); m != nil {
			// German grouping: 1.234.567,89
			shape.Amount = strings.Replace(strings.ReplaceAll(m[1], ".", ""), ",", ".", 1)
			shape.Currency = "EUR"
			break
		}
	}
	if programme := p.detail(programmeLabels); programme != "" {
		shape.Instrument = &sources.InstrumentRef{Name: strings.TrimSpace(euroAmount.ReplaceAllString(programme, ""))}
	}
	shape.Keywords = strings.Split(p.detail(subjectLabels), ";")
	return shape, problems.Errors()
}

func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func label(n *html.Node) string {
	return strings.TrimSpace(strings.TrimSuffix(textOf(n), ":"))
}

// textOf returns the visible text under n with whitespace collapsed.
func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
