package gepris_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/internal/sources/gepris"
	"github.com/agentstation/fundingscape/internal/sources/testhelper"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

func TestParseSearch(t *testing.T) {
	hits, err := gepris.ParseSearch(testhelper.LoadTestdata(t, "search.html"))
	require.NoError(t, err)
	assert.Equal(t, []gepris.Hit{
		{ID: "390534769", Title: "Quantum Many-Body Systems out of Equilibrium"},
		{ID: "441234567", Title: "Topological Qubits"},
	}, hits)
}

func TestConnect(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{
		URL:     "https://gepris.test/",
		Options: map[string]string{"keywords": "quantum, qubit"},
	})
	search := testhelper.LoadTestdata(t, "search.html")
	f := testhelper.NewFetcher(map[string][]byte{
		conn.SearchURL("quantum"):    search,
		conn.SearchURL("qubit"):      search,
		conn.ProjectURL("390534769"): testhelper.LoadTestdata(t, "project.html"),
	})

	got := testhelper.Collect(t, conn, f)
	assert.Len(t, f.Requests, 4, "each project page is fetched once")
	require.Len(t, got.Errors, 1, "missing detail page")
	assert.True(t, errors.IsNoData(got.Errors[0]))
	require.Len(t, got.Shapes, 1)

	p := got.Shape(t, "gepris_390534769")
	assert.Equal(t, sources.KindGrant, p.Kind)
	assert.Equal(t, "390534769", p.ProjectID)
	assert.Equal(t, "Quantum Many-Body Systems out of Equilibrium", p.Title)
	assert.Equal(t, "Professor Dr. Anna Schmidt", p.PIName)
	assert.Equal(t, "Ludwig-Maximilians-Universität München", p.PIInstitution)
	assert.Equal(t, "DE", p.PICountry)
	assert.Equal(t, grants.NewDate(2018, 1, 1), p.Start)
	assert.Equal(t, grants.NewDate(2025, 12, 31), p.End)
	assert.Equal(t, "1234567.89", p.Amount)
	assert.Equal(t, "EUR", p.Currency)
	assert.Contains(t, p.Abstract, "thermalization in isolated quantum systems")
	assert.Equal(t, "Research Grants", p.Instrument.Name)
	assert.Equal(t, "DFG", p.Funder.ShortName)
	assert.Equal(t, []string{"Theoretical Condensed Matter Physics", " Optics, Quantum Optics"}, p.Keywords)
	assert.Empty(t, p.Status, "derived from the end date downstream")
}

func TestSearchOnly(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{
		URL:     "https://gepris.test",
		Options: map[string]string{"keywords": "quantum", "details": "false"},
	})
	f := testhelper.NewFetcher(map[string][]byte{
		conn.SearchURL("quantum"): testhelper.LoadTestdata(t, "search.html"),
	})

	got := testhelper.Collect(t, conn, f)
	require.Empty(t, got.Errors)
	assert.Len(t, f.Requests, 1)
	require.Len(t, got.Shapes, 2)
	q := got.Shape(t, "gepris_441234567")
	assert.Equal(t, "Topological Qubits", q.Title)
	assert.True(t, q.Start.IsZero())
}

func TestUnparseableTerm(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{})
	shape, problems := conn.Normalize(sources.RawRecord{Value: gepris.Project{
		Hit:     gepris.Hit{ID: "1"},
		Title:   "Ongoing",
		Details: map[string]string{"Term": "since 2021"},
	}})
	assert.True(t, shape.Start.IsZero())
	require.Len(t, problems, 1)
	assert.True(t, errors.IsValidationError(problems[0]))
}

func TestDefaults(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{})
	assert.Equal(t, sources.GEPRISID, conn.ID())
	assert.Equal(t, "https://gepris.dfg.de/gepris/projekt/42?language=en", conn.ProjectURL("42"))
	assert.Contains(t, conn.SearchURL("quantum computing"), "keywords_criterion=quantum+computing")
}

func newConnector(t *testing.T, cfg config.SourceConfig) *gepris.Connector {
	t.Helper()
	conn, err := gepris.New(cfg)
	require.NoError(t, err)
	return conn
}

func TestNewRejectsMalformedOptions(t *testing.T) {
	_, err := gepris.New(config.SourceConfig{Options: map[string]string{"details": "maybe", "results_per_page": "-5"}})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), "details")
	assert.Contains(t, err.Error(), "results_per_page")
}
