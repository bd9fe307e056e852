package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/agentstation/fundingscape/pkg/config"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/normalize"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// SourceSettings bound one connector run.
type SourceSettings struct {
	Delay              time.Duration
	MaxRecords         int // 0 is unlimited
	RejectionThreshold float64
	Retry              config.RetryConfig
}

// SettingsFor derives the settings of id from cfg.
func SettingsFor(cfg *config.Config, id sources.ID) SourceSettings {
	s := cfg.Source(id)
	return SourceSettings{
		Delay:              s.Delay,
		MaxRecords:         s.MaxRecords,
		RejectionThreshold: cfg.Pipeline.RejectionThreshold,
		Retry:              cfg.Retry,
	}
}

// RunSource runs one connector to completion and returns its result with
// the normalized records it staged. It never fails: problems become the
// result's health and message. The batch is nil unless the result is OK.
func (p *Pipeline) RunSource(ctx context.Context, conn sources.Connector, s SourceSettings) (*sources.RunResult, *normalize.Batch) {
	id := conn.ID()
	ctx = logging.WithSource(ctx, id.String())
	logger := logging.FromContext(ctx)
	start := p.now()

	f := newFetcher(id, p.cache, s.Delay, s.Retry)
	batch := normalize.NewBatch()
	res := &sources.RunResult{Source: id}

	for rec, err := range conn.Connect(ctx, f) {
		if err != nil {
			if errors.IsNoData(err) {
				logger.Debug().Err(err).Msg("No data")
				continue
			}
			res.FetchErrors++
			logger.Warn().Err(err).Msg("Fetch failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		res.RecordsIn++
		p.normalizeRecord(ctx, conn, rec, batch, res)
		if s.MaxRecords > 0 && res.RecordsIn >= s.MaxRecords {
			logger.Debug().Int("max_records", s.MaxRecords).Msg("Record limit reached")
			break
		}
	}

	stats := f.stats()
	res.Fetches = stats.fetches
	res.Changed = stats.changed
	res.ETag = stats.validators.ETag
	res.LastModified = stats.validators.LastModified
	res.Duration = p.now().Sub(start)
	res.Health, res.Message = health(ctx, res, stats, s.RejectionThreshold)

	p.metrics.ObserveRecords(id.String(), res.RecordsIn, res.RecordsNormalized, res.RecordsRejected)

	event := logger.Info()
	if res.Health != grants.HealthOK {
		event = logger.Warn()
	}
	event.
		Str("health", string(res.Health)).
		Int("records_in", res.RecordsIn).
		Int("normalized", res.RecordsNormalized).
		Int("rejected", res.RecordsRejected).
		Int("field_errors", res.FieldErrors).
		Int("fetches", res.Fetches).
		Int("fetch_errors", res.FetchErrors).
		Bool("changed", res.Changed).
		Str("reason", res.Message).
		Msg("Source finished")

	if !res.OK() {
		return res, nil
	}
	return res, batch
}

func (p *Pipeline) normalizeRecord(ctx context.Context, conn sources.Connector, rec sources.RawRecord, batch *normalize.Batch, res *sources.RunResult) {
	logger := logging.FromContext(ctx)

	shape, problems := conn.Normalize(rec)
	for _, err := range problems {
		if errors.IsRejection(err) {
			res.RecordsRejected++
			logger.Debug().Err(err).Str("locator", rec.Locator).Msg("Record rejected")
			return
		}
	}

	record, more := p.normalizer.Normalize(conn.ID(), shape)
	problems = append(problems, more...)
	if record == nil {
		res.RecordsRejected++
		for _, err := range more {
			logger.Debug().Err(err).Str("locator", rec.Locator).Msg("Record rejected")
		}
		return
	}
	for _, err := range problems {
		res.FieldErrors++
		logger.Debug().Err(err).Str("locator", rec.Locator).Msg("Field dropped")
	}
	batch.Add(record)
	res.RecordsNormalized++
}

// health applies the failure rules to a finished run.
func health(ctx context.Context, res *sources.RunResult, stats fetchStats, threshold float64) (grants.Health, string) {
	switch {
	case ctx.Err() != nil:
		return grants.HealthError, "canceled: " + ctx.Err().Error()
	case stats.fetches > 0 && stats.failures == stats.fetches:
		return grants.HealthError, fmt.Sprintf("all %d fetches failed", stats.fetches)
	case res.RecordsNormalized == 0 && (res.RecordsIn > 0 || stats.fetches > 0):
		if res.RecordsIn == 0 {
			return grants.HealthError, "no records"
		}
		return grants.HealthError, fmt.Sprintf("no usable records (%d rejected)", res.RecordsRejected)
	case res.RecordsNormalized == 0:
		return grants.HealthError, "connector made no requests"
	}
	if rate := res.RejectionRate(); rate > threshold {
		return grants.HealthStale, fmt.Sprintf("rejection rate %.0f%% above %.0f%%", rate*100, threshold*100)
	}
	if res.FetchErrors > 0 {
		return grants.HealthOK, fmt.Sprintf("%d fetch errors", res.FetchErrors)
	}
	return grants.HealthOK, ""
}
