package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/store"
)

const changeColumns = `seq, run_id, entity_type, entity_id, kind, field, old_value, new_value, detected_at`

// Snapshot implements store.Store. All tables are read in one transaction.
func (s *Store) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WrapResource("snapshot", "store", s.path, err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := store.NewSnapshot()
	err = scanData(ctx, tx, "SELECT data FROM funders", func(f grants.Funder) {
		snap.Funders[f.ID] = f
	})
	if err == nil {
		err = scanData(ctx, tx, "SELECT data FROM instruments", func(i grants.FundingInstrument) {
			snap.Instruments[i.ID] = i
		})
	}
	if err == nil {
		err = scanData(ctx, tx, "SELECT data FROM grant_awards", func(g grants.GrantAward) {
			snap.Grants[g.SourceIdentity] = g
		})
	}
	if err == nil {
		err = scanData(ctx, tx, "SELECT data FROM calls", func(c grants.Call) {
			snap.Calls[c.SourceIdentity] = c
		})
	}
	if err == nil {
		snap.Clusters, err = queryClusters(ctx, tx)
	}
	if err == nil {
		var runs []grants.SourceRunRecord
		runs, err = querySourceRuns(ctx, tx)
		for _, r := range runs {
			snap.SourceRuns[r.Source] = r
		}
	}
	if err != nil {
		return nil, errors.WrapResource("snapshot", "store", s.path, err)
	}
	return snap, nil
}

// Commit implements store.Store.
func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.IsEmpty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapResource("commit", "store", b.RunID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := apply(ctx, tx, b); err != nil {
		return errors.WrapResource("commit", "store", b.RunID, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapResource("commit", "store", b.RunID, err)
	}
	return nil
}

func apply(ctx context.Context, tx *sql.Tx, b *store.Batch) error {
	for _, e := range b.Changes {
		runID := e.RunID
		if runID == "" {
			runID = b.RunID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO change_log (run_id, entity_type, entity_id, kind, field, old_value, new_value, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, string(e.EntityType), e.EntityID, string(e.Kind), e.Field, e.OldValue, e.NewValue,
			formatTime(e.DetectedAt))
		if err != nil {
			return fmt.Errorf("insert change %s %s: %w", e.Kind, e.EntityID, err)
		}
	}

	for _, f := range b.Funders {
		if err := upsert(ctx, tx, `
			INSERT INTO funders (id, name, country, data) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, country = excluded.country, data = excluded.data`,
			f, f.ID, f.Name, f.Country); err != nil {
			return fmt.Errorf("upsert funder %s: %w", f.ID, err)
		}
	}
	for _, i := range b.Instruments {
		if err := upsert(ctx, tx, `
			INSERT INTO instruments (id, funder_id, name, data) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET funder_id = excluded.funder_id, name = excluded.name, data = excluded.data`,
			i, i.ID, i.FunderID, i.Name); err != nil {
			return fmt.Errorf("upsert instrument %s: %w", i.ID, err)
		}
	}
	for _, g := range b.Grants {
		if err := upsert(ctx, tx, `
			INSERT INTO grant_awards (source, source_id, project_id, title, data) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source, source_id) DO UPDATE SET
				project_id = excluded.project_id, title = excluded.title, data = excluded.data`,
			g, g.Source, g.LocalID, g.ProjectID, g.Title); err != nil {
			return fmt.Errorf("upsert grant %s: %w", g.SourceIdentity, err)
		}
	}
	for _, c := range b.Calls {
		if err := upsert(ctx, tx, `
			INSERT INTO calls (source, source_id, status, deadline, data) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source, source_id) DO UPDATE SET
				status = excluded.status, deadline = excluded.deadline, data = excluded.data`,
			c, c.Source, c.LocalID, string(c.Status), c.Deadline.String()); err != nil {
			return fmt.Errorf("upsert call %s: %w", c.SourceIdentity, err)
		}
	}

	if b.ReplaceClusters {
		if _, err := tx.ExecContext(ctx, "DELETE FROM canonical_grants"); err != nil {
			return fmt.Errorf("clear clusters: %w", err)
		}
		for _, c := range b.Clusters {
			aliases, err := json.Marshal(c.Aliases)
			if err != nil {
				return fmt.Errorf("encode cluster %s: %w", c.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO canonical_grants (id, primary_source, primary_source_id, aliases)
				VALUES (?, ?, ?, ?)`,
				c.ID, c.Primary.Source, c.Primary.LocalID, string(aliases))
			if err != nil {
				return fmt.Errorf("insert cluster %s: %w", c.ID, err)
			}
		}
	}

	for _, r := range b.SourceRuns {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO source_runs (source, run_id, last_fetch, last_success, record_count, etag, last_modified, health, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source) DO UPDATE SET
				run_id = excluded.run_id,
				last_fetch = excluded.last_fetch,
				last_success = excluded.last_success,
				record_count = excluded.record_count,
				etag = excluded.etag,
				last_modified = excluded.last_modified,
				health = excluded.health,
				message = excluded.message`,
			r.Source, r.RunID, nullTime(r.LastFetch), nullTime(r.LastSuccess), r.RecordCount,
			r.ETag, r.LastModified, string(r.Health), r.Message)
		if err != nil {
			return fmt.Errorf("upsert source run %s: %w", r.Source, err)
		}
	}
	return nil
}

// upsert stores v as JSON in the trailing data parameter of query.
func upsert(ctx context.Context, tx *sql.Tx, query string, v any, keys ...any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, append(keys, string(data))...)
	return err
}

// Changes implements store.Store.
func (s *Store) Changes(ctx context.Context, q store.ChangeQuery) ([]grants.ChangeLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}
	if len(q.Kinds) > 0 {
		marks := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if q.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(q.EntityType))
	}
	if q.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, q.EntityID)
	}
	if q.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, q.AfterSeq)
	}

	query := "SELECT " + changeColumns + " FROM change_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	entries, err := queryChanges(ctx, s.db, query, args...)
	if err != nil {
		return nil, errors.WrapResource("query", "change_log", s.path, err)
	}
	return entries, nil
}

// LatestChanges implements store.Store.
func (s *Store) LatestChanges(ctx context.Context) ([]grants.ChangeLogEntry, error) {
	entries, err := queryChanges(ctx, s.db, `
		SELECT `+changeColumns+` FROM change_log
		WHERE run_id = (SELECT run_id FROM change_log ORDER BY seq DESC LIMIT 1)
		ORDER BY seq`)
	if err != nil {
		return nil, errors.WrapResource("query", "change_log", s.path, err)
	}
	return entries, nil
}

// SourceRuns implements store.Store.
func (s *Store) SourceRuns(ctx context.Context) ([]grants.SourceRunRecord, error) {
	runs, err := querySourceRuns(ctx, s.db)
	if err != nil {
		return nil, errors.WrapResource("query", "source_runs", s.path, err)
	}
	return runs, nil
}

// Clusters implements store.Store.
func (s *Store) Clusters(ctx context.Context) ([]grants.CanonicalGrant, error) {
	clusters, err := queryClusters(ctx, s.db)
	if err != nil {
		return nil, errors.WrapResource("query", "canonical_grants", s.path, err)
	}
	return clusters, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanData[T any](ctx context.Context, q querier, query string, add func(T)) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return errors.WrapParse("json", query, err)
		}
		add(v)
	}
	return rows.Err()
}

func queryChanges(ctx context.Context, q querier, query string, args ...any) ([]grants.ChangeLogEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []grants.ChangeLogEntry
	for rows.Next() {
		var (
			e                    grants.ChangeLogEntry
			entityType, kind, at string
		)
		if err := rows.Scan(&e.Seq, &e.RunID, &entityType, &e.EntityID, &kind,
			&e.Field, &e.OldValue, &e.NewValue, &at); err != nil {
			return nil, err
		}
		e.EntityType = grants.EntityType(entityType)
		e.Kind = grants.ChangeKind(kind)
		if e.DetectedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func queryClusters(ctx context.Context, q querier) ([]grants.CanonicalGrant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, primary_source, primary_source_id, aliases
		FROM canonical_grants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var clusters []grants.CanonicalGrant
	for rows.Next() {
		var (
			c       grants.CanonicalGrant
			aliases string
		)
		if err := rows.Scan(&c.ID, &c.Primary.Source, &c.Primary.LocalID, &aliases); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aliases), &c.Aliases); err != nil {
			return nil, errors.WrapParse("json", "canonical_grants.aliases", err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

func querySourceRuns(ctx context.Context, q querier) ([]grants.SourceRunRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT source, run_id, last_fetch, last_success, record_count, etag, last_modified, health, message
		FROM source_runs ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []grants.SourceRunRecord
	for rows.Next() {
		var (
			r                      grants.SourceRunRecord
			lastFetch, lastSuccess sql.NullString
			health                 string
		)
		if err := rows.Scan(&r.Source, &r.RunID, &lastFetch, &lastSuccess, &r.RecordCount,
			&r.ETag, &r.LastModified, &health, &r.Message); err != nil {
			return nil, err
		}
		r.Health = grants.Health(health)
		if r.LastFetch, err = parseNullTime(lastFetch); err != nil {
			return nil, err
		}
		if r.LastSuccess, err = parseNullTime(lastSuccess); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func formatTime(t utc.Time) string {
	return t.Time.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *utc.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (utc.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return utc.Time{}, errors.WrapParse("time", s, err)
	}
	return utc.New(t), nil
}

func parseNullTime(s sql.NullString) (*utc.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
