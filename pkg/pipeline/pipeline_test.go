package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/fundingscape/internal/blob"
	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/metrics"
	"github.com/agentstation/fundingscape/pkg/pipeline"
	"github.com/agentstation/fundingscape/pkg/sources"
	"github.com/agentstation/fundingscape/pkg/store"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// origin serves one payload per path. With etags on, it answers 304 to a
// matching If-None-Match; otherwise it always sends the full body.
type origin struct {
	mu       sync.Mutex
	bodies   map[string]string
	status   map[string]int
	etags    bool
	requests atomic.Int32
	hits     map[string]int
}

func newOrigin(t *testing.T, etags bool) (*origin, *httptest.Server) {
	o := &origin{bodies: map[string]string{}, status: map[string]int{}, hits: map[string]int{}, etags: etags}
	srv := httptest.NewServer(o)
	t.Cleanup(srv.Close)
	return o, srv
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.requests.Add(1)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits[r.URL.Path]++
	if code := o.status[r.URL.Path]; code != 0 {
		w.WriteHeader(code)
		return
	}
	body, ok := o.bodies[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if o.etags {
		etag := fmt.Sprintf(`"%08x"`, crc32.ChecksumIEEE([]byte(body)))
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	_, _ = w.Write([]byte(body))
}

func (o *origin) set(path string, lines ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies[path] = strings.Join(lines, "\n")
}

func (o *origin) fail(path string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status[path] = code
}

func (o *origin) hitsOf(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

// lineConnector reads "id;title;amount" lines from each of its URLs.
type lineConnector struct {
	id   sources.ID
	urls []string
}

func (c *lineConnector) ID() sources.ID { return c.id }
func (c *lineConnector) Name() string   { return "lines:" + c.id.String() }

func (c *lineConnector) Connect(ctx context.Context, f sources.Fetcher) iter.Seq2[sources.RawRecord, error] {
	return func(yield func(sources.RawRecord, error) bool) {
		for _, u := range c.urls {
			res, err := f.Fetch(ctx, cache.Request{URL: u})
			if err != nil {
				if !yield(sources.RawRecord{Locator: u}, err) {
					return
				}
				continue
			}
			for i, line := range strings.Split(string(res.Payload), "\n") {
				if strings.TrimSpace(line) == "" {
					continue
				}
				if !yield(sources.RawRecord{Locator: fmt.Sprintf("%s#%d", u, i+1), Value: line}, nil) {
					return
				}
			}
		}
	}
}

func (c *lineConnector) Normalize(rec sources.RawRecord) (sources.Shape, []error) {
	parts := strings.Split(rec.Value.(string), ";")
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return sources.Shape{
		Kind:      sources.KindGrant,
		LocalID:   parts[0],
		Title:     parts[1],
		Amount:    parts[2],
		Currency:  "EUR",
		PICountry: "DE",
		Start:     grants.NewDate(2024, 1, 1),
		End:       grants.NewDate(2026, 12, 31),
		Funder:    &sources.FunderRef{Name: "European Commission", Country: "BE"},
	}, nil
}

type fixture struct {
	t      *testing.T
	origin *origin
	srv    *httptest.Server
	cfg    *config.Config
	store  *store.Memory
	cache  *cache.Cache
	conns  *sources.Sources
	runs   int
}

func newFixture(t *testing.T, etags bool) *fixture {
	t.Helper()
	o, srv := newOrigin(t, etags)
	cfg := config.Defaults()
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 2 * time.Millisecond
	for name, s := range cfg.Sources {
		s.Delay = 0
		cfg.Sources[name] = s
	}
	return &fixture{
		t:      t,
		origin: o,
		srv:    srv,
		cfg:    cfg,
		store:  store.NewMemory(),
		cache:  cache.New(blob.NewMemory(), cache.WithClient(srv.Client())),
		conns:  sources.NewSources(),
	}
}

func (f *fixture) connector(id sources.ID, paths ...string) {
	urls := make([]string, len(paths))
	for i, p := range paths {
		urls[i] = f.srv.URL + p
	}
	f.conns.Set(&lineConnector{id: id, urls: urls})
}

func (f *fixture) pipeline(opts ...pipeline.Option) *pipeline.Pipeline {
	f.t.Helper()
	base := []pipeline.Option{
		pipeline.WithClock(func() time.Time { return fixedNow }),
		pipeline.WithRunIDs(func() string {
			f.runs++
			return fmt.Sprintf("run-%d", f.runs)
		}),
	}
	p, err := pipeline.New(f.cfg, f.cache, f.store, f.conns, append(base, opts...)...)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) run(opts pipeline.RunOptions) *pipeline.Report {
	f.t.Helper()
	report, err := f.pipeline().Run(context.Background(), opts)
	require.NoError(f.t, err)
	return report
}

func (f *fixture) snapshot() *store.Snapshot {
	f.t.Helper()
	snap, err := f.store.Snapshot(context.Background())
	require.NoError(f.t, err)
	return snap
}

func (f *fixture) changes() []grants.ChangeLogEntry {
	f.t.Helper()
	entries, err := f.store.Changes(context.Background(), store.ChangeQuery{})
	require.NoError(f.t, err)
	return entries
}

func TestIdempotentRerun(t *testing.T) {
	for _, tt := range []struct {
		name  string
		etags bool
	}{
		{"not modified", true},
		{"identical body", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.etags)
			f.origin.set("/cordis", "101017733;Quantum Sensing Network;500000")
			f.origin.set("/openaire", "P1;Quantum Sensing Network;500000")
			f.connector(sources.CordisBulkID, "/cordis")
			f.connector(sources.OpenAIREID, "/openaire")

			first := f.run(pipeline.RunOptions{})
			require.True(t, first.Committed)
			assert.True(t, first.Changed())
			assert.Equal(t, 2, first.Reconcile.Entries[grants.ChangeNew])

			snap := f.snapshot()
			require.Len(t, snap.Grants, 2)
			require.Len(t, snap.Clusters, 1)
			assert.Equal(t, "cordis_bulk", snap.Clusters[0].Primary.Source, "higher priority source is primary")
			assert.Len(t, snap.Clusters[0].Aliases, 1)
			logged := len(f.changes())

			second := f.run(pipeline.RunOptions{})
			assert.False(t, second.Changed())
			assert.Zero(t, second.Reconcile.TotalEntries())
			assert.False(t, second.Reconcile.Metadata.Stats.ClustersChanged)
			assert.Len(t, f.changes(), logged)

			again := f.snapshot()
			assert.Equal(t, snap.Grants, again.Grants)
			assert.Equal(t, snap.Clusters, again.Clusters)
			assert.Equal(t, "run-2", again.SourceRuns["cordis_bulk"].RunID)
			for _, res := range second.Sources {
				assert.Equal(t, grants.HealthOK, res.Health)
			}
		})
	}
}

func TestAmountUpdate(t *testing.T) {
	f := newFixture(t, true)
	f.origin.set("/cordis", "P1;Quantum Sensing Network;500000")
	f.connector(sources.CordisBulkID, "/cordis")
	f.run(pipeline.RunOptions{})

	f.origin.set("/cordis", "P1;Quantum Sensing Network;550000")
	report := f.run(pipeline.RunOptions{})
	assert.True(t, report.Changed())

	latest, err := f.store.LatestChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, grants.ChangeUpdated, latest[0].Kind)
	assert.Equal(t, "amount", latest[0].Field)
	assert.Equal(t, "500000", latest[0].OldValue)
	assert.Equal(t, "550000", latest[0].NewValue)
	assert.Equal(t, "cordis_bulk:P1", latest[0].EntityID)

	g := f.snapshot().Grants[grants.SourceIdentity{Source: "cordis_bulk", LocalID: "P1"}]
	assert.Equal(t, "550000", g.Amount.Decimal())
}

func TestRejectionRateMarksSourceStale(t *testing.T) {
	f := newFixture(t, false)
	lines := make([]string, 0, 10)
	for i := range 10 {
		title := fmt.Sprintf("Project number %d on topic %c", i, 'A'+i)
		if i%5 == 1 || i%5 == 3 {
			title = ""
		}
		lines = append(lines, fmt.Sprintf("C%d;%s;1000", i, title))
	}
	f.origin.set("/cordis", lines...)
	f.origin.set("/openaire", "O1;Ocean Carbon Survey;2000")
	f.connector(sources.CordisBulkID, "/cordis")
	f.connector(sources.OpenAIREID, "/openaire")

	report := f.run(pipeline.RunOptions{})

	cordis := report.Source(sources.CordisBulkID)
	require.NotNil(t, cordis)
	assert.Equal(t, grants.HealthStale, cordis.Health)
	assert.Equal(t, 10, cordis.RecordsIn)
	assert.Equal(t, 6, cordis.RecordsNormalized)
	assert.Equal(t, 4, cordis.RecordsRejected)
	assert.InDelta(t, 0.4, cordis.RejectionRate(), 1e-9)
	assert.Equal(t, grants.HealthOK, report.Source(sources.OpenAIREID).Health)

	snap := f.snapshot()
	bySource := map[string]int{}
	for id := range snap.Grants {
		bySource[id.Source]++
	}
	assert.Equal(t, map[string]int{"cordis_bulk": 6, "openaire": 1}, bySource)

	runs := snap.SourceRuns
	assert.Equal(t, grants.HealthStale, runs["cordis_bulk"].Health)
	assert.Nil(t, runs["cordis_bulk"].LastSuccess, "stale runs do not advance last_success")
	require.NotNil(t, runs["openaire"].LastSuccess)
	assert.Equal(t, fixedNow, runs["openaire"].LastSuccess.Time)
}

func TestTransportFailureExhaustsRetries(t *testing.T) {
	f := newFixture(t, false)
	f.origin.fail("/gepris", http.StatusServiceUnavailable)
	f.origin.set("/openaire", "O1;Ocean Carbon Survey;2000")
	f.connector(sources.GEPRISID, "/gepris")
	f.connector(sources.OpenAIREID, "/openaire")

	report := f.run(pipeline.RunOptions{})

	gepris := report.Source(sources.GEPRISID)
	require.NotNil(t, gepris)
	assert.Equal(t, grants.HealthError, gepris.Health)
	assert.Equal(t, 1, gepris.Fetches)
	assert.Equal(t, 1, gepris.FetchErrors)
	assert.Contains(t, gepris.Message, "all 1 fetches failed")
	assert.Equal(t, f.cfg.Retry.MaxAttempts, f.origin.hitsOf("/gepris"))
	assert.Equal(t, []sources.ID{sources.GEPRISID}, report.Failed())

	snap := f.snapshot()
	assert.Len(t, snap.Grants, 1, "other sources still commit")
	assert.Equal(t, grants.HealthError, snap.SourceRuns["gepris"].Health)
}

func TestPartialFetchFailure(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/page1", "O1;Ocean Carbon Survey;2000")
	f.origin.fail("/page2", http.StatusBadGateway)
	f.connector(sources.OpenAIREID, "/page1", "/page2", "/missing")

	report := f.run(pipeline.RunOptions{})

	res := report.Source(sources.OpenAIREID)
	assert.Equal(t, grants.HealthOK, res.Health)
	assert.Equal(t, 3, res.Fetches)
	assert.Equal(t, 1, res.FetchErrors, "no-data pages are not errors")
	assert.Equal(t, "1 fetch errors", res.Message)
}

func TestTransientFailureIsRetried(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/openaire", "O1;Ocean Carbon Survey;2000")
	var calls atomic.Int32
	flaky := cache.New(blob.NewMemory(), cache.WithClient(doerFunc(func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return &http.Response{StatusCode: http.StatusTooManyRequests, Body: http.NoBody, Header: http.Header{}, Request: req}, nil
		}
		return f.srv.Client().Do(req)
	})))
	f.cache = flaky
	f.connector(sources.OpenAIREID, "/openaire")

	report := f.run(pipeline.RunOptions{})
	assert.Equal(t, grants.HealthOK, report.Source(sources.OpenAIREID).Health)
	assert.Equal(t, int32(2), calls.Load())
}

type doerFunc func(*http.Request) (*http.Response, error)

func (d doerFunc) Do(req *http.Request) (*http.Response, error) { return d(req) }

func TestNoUsableRecordsIsAnError(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/cordis", "C1;;100", "C2;;200")
	f.connector(sources.CordisBulkID, "/cordis")

	report := f.run(pipeline.RunOptions{})
	res := report.Source(sources.CordisBulkID)
	assert.Equal(t, grants.HealthError, res.Health)
	assert.Equal(t, 2, res.RecordsRejected)
	assert.Empty(t, f.snapshot().Grants)
}

func TestDryRunCommitsNothing(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/cordis", "P1;Quantum Sensing Network;500000")
	f.connector(sources.CordisBulkID, "/cordis")

	report := f.run(pipeline.RunOptions{DryRun: true})
	assert.False(t, report.Committed)
	assert.Equal(t, 1, report.Reconcile.Entries[grants.ChangeNew])
	assert.Contains(t, report.Summary(), "dry run")

	snap := f.snapshot()
	assert.Empty(t, snap.Grants)
	assert.Empty(t, snap.SourceRuns)
	assert.Empty(t, f.changes())
}

func TestMaxRecords(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/cordis", "A;Alpha project;1", "B;Beta project;2", "C;Gamma project;3")
	f.connector(sources.CordisBulkID, "/cordis")

	report := f.run(pipeline.RunOptions{MaxRecords: 2})
	assert.Equal(t, 2, report.Source(sources.CordisBulkID).RecordsIn)
	assert.Len(t, f.snapshot().Grants, 2)
}

func TestCanceledRunCommitsNothing(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/cordis", "P1;Quantum Sensing Network;500000")
	f.connector(sources.CordisBulkID, "/cordis")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.pipeline().Run(ctx, pipeline.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.snapshot().SourceRuns)
	assert.Zero(t, f.origin.requests.Load())
}

func TestSourceSelection(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/cordis", "P1;Quantum Sensing Network;500000")
	f.origin.set("/openaire", "O1;Ocean Carbon Survey;2000")
	f.connector(sources.CordisBulkID, "/cordis")
	f.connector(sources.OpenAIREID, "/openaire")

	report := f.run(pipeline.RunOptions{Sources: []string{"openaire"}})
	require.Len(t, report.Sources, 1)
	assert.Equal(t, sources.OpenAIREID, report.Sources[0].Source)
	assert.Zero(t, f.origin.hitsOf("/cordis"))

	_, err := f.pipeline().Run(context.Background(), pipeline.RunOptions{Sources: []string{"nsf"}})
	assert.True(t, errors.IsConfigError(err))

	_, err = f.pipeline().Run(context.Background(), pipeline.RunOptions{Sources: []string{"gepris"}})
	assert.True(t, errors.IsConfigError(err), "gepris has no connector here")

	f.cfg.Sources["cordis_bulk"] = config.SourceConfig{Enabled: false}
	report = f.run(pipeline.RunOptions{})
	require.Len(t, report.Sources, 1)
	assert.Equal(t, sources.OpenAIREID, report.Sources[0].Source)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Pipeline.Concurrency = 0
	_, err := pipeline.New(cfg, cache.New(blob.NewMemory()), store.NewMemory(), sources.NewSources())
	assert.True(t, errors.IsConfigError(err))
}

func TestDelayThrottlesRequests(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/a", "A;Alpha project;1")
	f.origin.set("/b", "B;Beta project;2")
	f.origin.set("/c", "C;Gamma project;3")
	f.connector(sources.GEPRISID, "/a", "/b", "/c")
	s := f.cfg.Sources["gepris"]
	s.Delay = 40 * time.Millisecond
	f.cfg.Sources["gepris"] = s

	start := time.Now()
	f.run(pipeline.RunOptions{})
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/cordis", "P1;Quantum Sensing Network;500000")
	f.connector(sources.CordisBulkID, "/cordis")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	_, err := f.pipeline(pipeline.WithMetrics(m)).Run(context.Background(), pipeline.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Records.WithLabelValues("cordis_bulk", "normalized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceState.WithLabelValues("cordis_bulk", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SourceState.WithLabelValues("cordis_bulk", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Changes.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Clusters))
}

func TestSourceStatus(t *testing.T) {
	f := newFixture(t, false)
	f.origin.set("/cordis", "P1;Quantum Sensing Network;500000")
	f.connector(sources.CordisBulkID, "/cordis")
	f.run(pipeline.RunOptions{})

	runs, err := pipeline.SourceStatus(context.Background(), f.store, []sources.ID{sources.CordisBulkID, sources.GEPRISID})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "cordis_bulk", runs[0].Source)
	assert.Equal(t, grants.HealthOK, runs[0].Health)
	assert.Equal(t, 1, runs[0].RecordCount)
	assert.Equal(t, "gepris", runs[1].Source)
	assert.Equal(t, grants.HealthNeverFetched, runs[1].Health)
}

func TestLogLinesHaveUniqueKeys(t *testing.T) {
	f := newFixture(t, false)
	f.origin.fail("/gepris", http.StatusServiceUnavailable)
	f.origin.set("/openaire", "O1;Ocean Carbon Survey;2000")
	f.connector(sources.GEPRISID, "/gepris")
	f.connector(sources.OpenAIREID, "/openaire")

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	ctx := logging.WithLogger(context.Background(), &logger)
	_, err := f.pipeline().Run(ctx, pipeline.RunOptions{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var sawReason bool
	for _, line := range lines {
		keys := objectKeys(t, line)
		seen := map[string]bool{}
		for _, k := range keys {
			assert.False(t, seen[k], "key %q repeated in %s", k, line)
			seen[k] = true
		}
		sawReason = sawReason || (seen["reason"] && strings.Contains(line, "all 1 fetches failed"))
	}
	assert.True(t, sawReason, "failed source logs its reason")
}

// objectKeys lists the top-level keys of a JSON object in order.
func objectKeys(t *testing.T, line string) []string {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(line))
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		require.NoError(t, dec.Decode(&skip))
	}
	return keys
}
