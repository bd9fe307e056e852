// Package cordis reads the CORDIS bulk project archives: one ZIP per
// framework programme, holding ';'-separated project.csv and
// organization.csv files.
package cordis

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// DefaultBaseURL is where CORDIS publishes its project archives.
const DefaultBaseURL = "https://cordis.europa.eu/data"

// Framework is one framework programme archive.
type Framework struct {
	Key       string // Prefix of source ids: "horizon_101234567"
	Archive   string // File name under the base URL
	Programme string // Instrument name
}

// Frameworks lists the archives read by default.
var Frameworks = []Framework{
	{Key: "horizon", Archive: "cordis-HORIZONprojects-csv.zip", Programme: "Horizon Europe"},
	{Key: "h2020", Archive: "cordis-h2020projects-csv.zip", Programme: "Horizon 2020"},
}

const (
	projectFile      = "project.csv"
	organizationFile = "organization.csv"
)

// Connector implements sources.Connector for CORDIS.
type Connector struct {
	baseURL    string
	frameworks []Framework
}

// New configures a connector. cfg.URL replaces the base URL; the
// "frameworks" option restricts the archives read ("horizon,h2020").
// Unknown framework keys and options are configuration errors.
func New(cfg config.SourceConfig) (*Connector, error) {
	c := &Connector{baseURL: DefaultBaseURL, frameworks: Frameworks}
	if cfg.URL != "" {
		c.baseURL = strings.TrimSuffix(cfg.URL, "/")
	}
	opts := cfg.OptionReader(sources.CordisBulkID.String())
	if keys := opts.List("frameworks"); keys != nil {
		c.frameworks = nil
		for _, key := range keys {
			i := slices.IndexFunc(Frameworks, func(fw Framework) bool { return fw.Key == key })
			if i < 0 {
				opts.Invalid("frameworks", "names unknown framework %q", key)
				continue
			}
			c.frameworks = append(c.frameworks, Frameworks[i])
		}
	}
	if err := opts.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// ID implements sources.Connector.
func (c *Connector) ID() sources.ID { return sources.CordisBulkID }

// Name implements sources.Connector.
func (c *Connector) Name() string { return "CORDIS bulk projects" }

// Project is one project.csv row joined with its coordinator.
type Project struct {
	Framework   Framework
	Fields      map[string]string
	Coordinator Organization
}

// Organization is the coordinating participant of a project.
type Organization struct {
	Name    string
	Country string
}

// Connect implements sources.Connector.
func (c *Connector) Connect(ctx context.Context, f sources.Fetcher) iter.Seq2[sources.RawRecord, error] {
	return func(yield func(sources.RawRecord, error) bool) {
		for _, fw := range c.frameworks {
			url := c.baseURL + "/" + fw.Archive
			res, err := f.Fetch(ctx, cache.Request{URL: url, Source: sources.CordisBulkID.String()})
			if err != nil {
				if !yield(sources.RawRecord{Locator: url}, err) {
					return
				}
				continue
			}
			if !c.readArchive(fw, url, res.Payload, yield) {
				return
			}
		}
	}
}

// readArchive yields the projects of one archive. It returns false when
// the consumer stopped.
func (c *Connector) readArchive(fw Framework, url string, payload []byte, yield func(sources.RawRecord, error) bool) bool {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return yield(sources.RawRecord{Locator: url}, errors.NewParseError("zip", url, "open archive", err))
	}

	coordinators := map[string]Organization{}
	if err := eachRow(zr, organizationFile, func(_ int, row map[string]string) bool {
		if row["role"] == "coordinator" && row["projectID"] != "" {
			coordinators[row["projectID"]] = Organization{Name: row["name"], Country: row["country"]}
		}
		return true
	}); err != nil && !yield(sources.RawRecord{Locator: url + "#" + organizationFile}, err) {
		return false
	}

	stopped := false
	err = eachRow(zr, projectFile, func(line int, row map[string]string) bool {
		rec := sources.RawRecord{
			Locator: fmt.Sprintf("%s#%s:%d", url, projectFile, line),
			Value:   Project{Framework: fw, Fields: row, Coordinator: coordinators[row["id"]]},
		}
		if !yield(rec, nil) {
			stopped = true
			return false
		}
		return true
	})
	if stopped {
		return false
	}
	if err != nil {
		return yield(sources.RawRecord{Locator: url + "#" + projectFile}, err)
	}
	return true
}

// eachRow calls fn with every data row of the named CSV, keyed by header.
func eachRow(zr *zip.Reader, name string, fn func(line int, row map[string]string) bool) error {
	file, err := zr.Open(name)
	if err != nil {
		return errors.NewParseError("zip", name, "missing from archive", err)
	}
	defer func() { _ = file.Close() }()

	r := csv.NewReader(file)
	r.Comma = ';'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return errors.NewParseError("csv", name, "read header", err)
	}
	for i := range header {
		header[i] = strings.TrimPrefix(strings.TrimSpace(header[i]), "\ufeff")
	}

	for line := 2; ; line++ {
		values, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewParseError("csv", name, fmt.Sprintf("line %d", line), err)
		}
		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(values) {
				row[key] = strings.TrimSpace(values[i])
			}
		}
		if !fn(line, row) {
			return nil
		}
	}
}

// Normalize implements sources.Connector.
func (c *Connector) Normalize(rec sources.RawRecord) (sources.Shape, []error) {
	p, ok := rec.Value.(Project)
	if !ok {
		return sources.Shape{}, []error{errors.NewRejectionError(c.ID().String(), rec.Locator, "record")}
	}
	row := p.Fields
	id := row["id"]
	problems := sources.NewProblems(c.ID(), id)
	if !problems.Require("id", id) {
		return sources.Shape{}, problems.Errors()
	}

	amount := row["ecMaxContribution"]
	if amount == "" {
		amount = row["totalCost"]
	}

	keywords := append(strings.Split(row["keywords"], ","), row["topics"], row["fundingScheme"])

	shape := sources.Shape{
		Kind:          sources.KindGrant,
		LocalID:       p.Framework.Key + "_" + id,
		ProjectID:     id,
		Title:         row["title"],
		Acronym:       row["acronym"],
		Abstract:      row["objective"],
		PIInstitution: p.Coordinator.Name,
		PICountry:     p.Coordinator.Country,
		Start:         problems.Date("start_date", row["startDate"]),
		End:           problems.Date("end_date", row["endDate"]),
		Amount:        amount,
		Currency:      "EUR",
		Status:        row["status"],
		Keywords:      keywords,
		Funder: &sources.FunderRef{
			Name:      "European Commission",
			ShortName: "EC",
			Category:  grants.FunderSupranational,
		},
		Instrument: &sources.InstrumentRef{
			Name:       p.Framework.Programme,
			Recurrence: grants.RecurrenceIrregular,
		},
	}
	return shape, problems.Errors()
}
