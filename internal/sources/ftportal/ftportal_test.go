package ftportal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/internal/sources/ftportal"
	"github.com/agentstation/fundingscape/internal/sources/testhelper"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

const portalURL = "https://portal.test/grantsTenders.json"

const dump = `{"fundingData": {"GrantTenderObj": [
  {
    "type": 1, "ccm2Id": 99999001,
    "identifier": "HORIZON-CL4-2025-QUANTUM-01-01",
    "title": "Quantum Computing Platforms",
    "plannedOpeningDateLong": 1700000000000,
    "callIdentifier": "HORIZON-CL4-2025-QUANTUM-01",
    "callTitle": "Quantum Technologies Call 2025",
    "deadlineDatesLong": [1728950400000, 1726358400000],
    "frameworkProgramme": {"id": 1, "abbreviation": "HORIZON", "description": "Horizon Europe"},
    "status": {"id": 1, "abbreviation": "Open", "description": "Open"},
    "tags": ["quantum computing", "quantum technology", 7]
  },
  {
    "type": 1, "ccm2Id": 99999002,
    "identifier": "ERC-2025-STG",
    "title": "ERC Starting Grants 2025",
    "deadlineDatesLong": [],
    "frameworkProgramme": {"abbreviation": "HORIZON"}
  },
  {
    "type": 1, "ccm2Id": 99999003,
    "identifier": "AGRIP-SIMPLE-2025",
    "title": "Agriculture Promotion",
    "frameworkProgramme": {"abbreviation": "AGRIP2027"},
    "status": {"abbreviation": "Closed"}
  },
  {
    "type": 1,
    "identifier": "EIC-2025-PATHFINDER",
    "title": "EIC Pathfinder Open",
    "frameworkProgramme": {"abbreviation": "EIC"},
    "status": {"abbreviation": "Under evaluation"}
  }
]}}`

func collect(t *testing.T, cfg config.SourceConfig) *testhelper.Collected {
	t.Helper()
	cfg.URL = portalURL
	return testhelper.Collect(t, newConnector(t, cfg), testhelper.NewFetcher(map[string][]byte{portalURL: []byte(dump)}))
}

func TestConnect(t *testing.T) {
	got := collect(t, config.SourceConfig{})
	require.Empty(t, got.Errors)
	require.Len(t, got.Shapes, 3, "AGRIP topic is outside the default programmes")

	q := got.Shape(t, "99999001")
	assert.Equal(t, sources.KindCall, q.Kind)
	assert.Equal(t, "HORIZON-CL4-2025-QUANTUM-01-01", q.CallIdentifier)
	assert.Equal(t, "Quantum Computing Platforms", q.Title)
	assert.Equal(t, "Quantum Technologies Call 2025", q.Description)
	assert.Equal(t, grants.NewDate(2023, 11, 14), q.Opening)
	assert.Equal(t, grants.NewDate(2024, 9, 15), q.Deadline, "earliest deadline")
	assert.Equal(t, "Open", q.Status)
	assert.Equal(t, "HORIZON", q.Programme)
	assert.Equal(t, []string{"quantum computing", "quantum technology"}, q.Keywords)
	assert.Equal(t, ftportal.TopicURL+"HORIZON-CL4-2025-QUANTUM-01-01", q.URL)
	require.NotNil(t, q.Instrument)
	assert.Equal(t, "Horizon Europe", q.Instrument.Name)
	assert.Equal(t, "EC", q.Funder.ShortName)

	erc := got.Shape(t, "99999002")
	assert.Equal(t, "closed", erc.Status, "missing status object")
	assert.True(t, erc.Deadline.IsZero())
	assert.True(t, erc.Opening.IsZero())
	assert.Equal(t, "HORIZON", erc.Instrument.Name)

	eic := got.Shape(t, "EIC-2025-PATHFINDER")
	assert.Equal(t, "Under evaluation", eic.Status)
}

func TestProgrammeOption(t *testing.T) {
	got := collect(t, config.SourceConfig{Options: map[string]string{"programmes": "AGRIP"}})
	require.Len(t, got.Shapes, 1)
	assert.Equal(t, "99999003", got.Shapes[0].LocalID)

	all := collect(t, config.SourceConfig{Options: map[string]string{"programmes": "*"}})
	assert.Len(t, all.Shapes, 4)
}

func TestMalformedDump(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{URL: portalURL})
	got := testhelper.Collect(t, conn, testhelper.NewFetcher(map[string][]byte{portalURL: []byte(`{"fundingData": [`)}))
	require.Len(t, got.Errors, 1)
	var perr *errors.ParseError
	assert.ErrorAs(t, got.Errors[0], &perr)
	assert.Empty(t, got.Records)
}

func TestBadTimestamp(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{})
	shape, problems := conn.Normalize(sources.RawRecord{Value: ftportal.Topic{
		Identifier:         "X-1",
		Title:              "Broken dates",
		PlannedOpeningDate: "yesterday",
	}})
	assert.Equal(t, "X-1", shape.LocalID)
	assert.True(t, shape.Opening.IsZero())
	require.Len(t, problems, 1)
	assert.True(t, errors.IsValidationError(problems[0]))
}

func newConnector(t *testing.T, cfg config.SourceConfig) *ftportal.Connector {
	t.Helper()
	conn, err := ftportal.New(cfg)
	require.NoError(t, err)
	return conn
}
