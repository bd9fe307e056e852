package openairebulk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/internal/sources/openairebulk"
	"github.com/agentstation/fundingscape/internal/sources/testhelper"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/sources"
)

const dumpURL = "https://zenodo.test/project.tar"

const fwfLine = `{"id":"fwf_________::8b1f2314ba8a643ad9b2383f88f1ae43","code":"Y 1067","acronym":"ParityQC","title":"ParityQC: Parity Constraints as a Quantum Computing Toolbox","startDate":"2017-09-04","endDate":"2024-09-03","keywords":"Quantum Computing; Quantum Simulation; Many-body Physics","summary":"Quantum computers promise speedups.","fundings":[{"shortName":"FWF","name":"Austrian Science Fund (FWF)","jurisdiction":"AT","fundingStream":{"id":"FWF::START","description":"FWF START Award"}}],"granted":{"currency":"EUR","totalCost":0.0,"fundedAmount":1168240.0}}`

const nsfLine = `{"id":"nsf_________::0123456789abcdef0123456789abcdef","code":"unidentified","title":"Ultracold Atoms in Optical Lattices","startDate":"2021-07-01T00:00:00Z","endDate":"2024-06-30","fundings":[{"shortName":"NSF","name":"National Science Foundation","jurisdiction":"US"}],"granted":{"currency":"USD","totalCost":450000.0}}`

const untitledLine = `{"id":"ukri________::aa","code":"EP/X000001/1","title":"unidentified","fundings":[{"shortName":"UKRI","name":"UK Research and Innovation","jurisdiction":"GB"}]}`

func TestConnect(t *testing.T) {
	payload := testhelper.TarOfGzip(t, map[string]string{
		"project/part-00000.json.gz": fwfLine + "\n\n" + nsfLine + "\n",
		"project/part-00001.json.gz": untitledLine + "\n{not json\n",
		"project/README.txt":         "ignored",
	})
	conn := newConnector(t, config.SourceConfig{URL: dumpURL})
	got := testhelper.Collect(t, conn, testhelper.NewFetcher(map[string][]byte{dumpURL: payload}))

	require.Empty(t, got.Errors)
	assert.Len(t, got.Records, 4)
	require.Len(t, got.Shapes, 2)
	require.Len(t, got.Rejected, 2)
	for _, err := range got.Rejected {
		assert.True(t, errors.IsRejection(err))
	}

	p := got.Shape(t, "oaire_FWF_Y 1067")
	assert.Equal(t, sources.KindGrant, p.Kind)
	assert.Equal(t, "Y 1067", p.ProjectID)
	assert.Equal(t, "ParityQC", p.Acronym)
	assert.Equal(t, "ParityQC: Parity Constraints as a Quantum Computing Toolbox", p.Title)
	assert.Equal(t, grants.NewDate(2017, 9, 4), p.Start)
	assert.Equal(t, grants.NewDate(2024, 9, 3), p.End)
	assert.Equal(t, "1168240.00", p.Amount, "funded amount wins over zero total cost")
	assert.Equal(t, "EUR", p.Currency)
	assert.Empty(t, p.Status)
	assert.Equal(t, "AT", p.PICountry)
	assert.Contains(t, p.Keywords, " Quantum Simulation")
	require.NotNil(t, p.Funder)
	assert.Equal(t, "FWF", p.Funder.ShortName)
	assert.Equal(t, "Austrian Science Fund (FWF)", p.Funder.Name)
	require.NotNil(t, p.Instrument)
	assert.Equal(t, "FWF START Award", p.Instrument.Name)

	n := got.Shape(t, "oaire_nsf_________::0123456789")
	assert.Empty(t, n.ProjectID)
	assert.Equal(t, grants.NewDate(2021, 7, 1), n.Start)
	assert.Equal(t, "450000.00", n.Amount)
	assert.Equal(t, "USD", n.Currency)
	assert.Nil(t, n.Instrument)
}

func TestConnectFetchFailure(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{URL: dumpURL})
	got := testhelper.Collect(t, conn, testhelper.NewFetcher(nil))
	require.Len(t, got.Errors, 1)
	assert.True(t, errors.IsNoData(got.Errors[0]))
	assert.Empty(t, got.Records)
}

func TestCorruptArchive(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{URL: dumpURL})
	got := testhelper.Collect(t, conn, testhelper.NewFetcher(map[string][]byte{dumpURL: []byte("not a tar archive at all")}))
	require.Len(t, got.Errors, 1)
	var perr *errors.ParseError
	assert.ErrorAs(t, got.Errors[0], &perr)
}

func TestDefaults(t *testing.T) {
	conn := newConnector(t, config.SourceConfig{})
	assert.Equal(t, sources.OpenAIREBulkID, conn.ID())
	f := testhelper.NewFetcher(nil)
	testhelper.Collect(t, conn, f)
	assert.Equal(t, []string{openairebulk.DefaultURL}, f.Requests)
}

func newConnector(t *testing.T, cfg config.SourceConfig) *openairebulk.Connector {
	t.Helper()
	conn, err := openairebulk.New(cfg)
	require.NoError(t, err)
	return conn
}
