// Package cache is a conditional-fetch cache for upstream payloads.
//
// Every response body is stored raw, before any parsing, under the identity
// of the request that produced it, together with the validators the server
// returned. On the next fetch the cache sends those validators; a 304 is
// answered from storage without re-downloading, and a 200 whose bytes hash
// the same as the stored payload is reported as unchanged.
//
// The cache knows nothing about grants. It is a key to (payload, validators)
// store with HTTP semantics in front.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/metrics"
)

// Backend is the byte store behind the cache. Get must return an error
// satisfying errors.IsNotFound for absent keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

const (
	dataSuffix = ".data"
	metaSuffix = ".meta.json"
)

// Result is the outcome of a fetch.
type Result struct {
	Identity   string
	URL        string
	Payload    []byte
	Validators Validators
	Changed    bool // false for 304 and for byte-identical 200 responses
	StatusCode int
	FetchedAt  time.Time
	FromCache  bool // Payload was read from storage, not the network
}

// Meta is the metadata record stored next to each payload.
type Meta struct {
	Identity     string    `json:"identity"`
	URL          string    `json:"url"`
	Method       string    `json:"method"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	SHA256       string    `json:"sha256"`
	Size         int       `json:"size"`
	Status       int       `json:"status"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Validators returns the stored validators.
func (m *Meta) Validators() Validators {
	return Validators{ETag: m.ETag, LastModified: m.LastModified}
}

type entry struct {
	meta    Meta
	payload []byte
}

// Cache performs conditional fetches. It is safe for concurrent use;
// fetches of the same identity are serialized.
type Cache struct {
	backend   Backend
	client    Doer
	userAgent string
	metrics   *metrics.Metrics
	now       func() time.Time

	locks sync.Map // identity -> *sync.Mutex
}

// New creates a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	o := newOptions(opts...)
	return &Cache{
		backend:   backend,
		client:    o.client,
		userAgent: o.userAgent,
		metrics:   o.metrics,
		now:       o.now,
	}
}

func (c *Cache) lock(identity string) func() {
	mu, _ := c.locks.LoadOrStore(identity, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Fetch performs a conditional request. Caller-supplied validators take
// precedence; with none, the stored validators for the request identity are
// used. No validators are sent when nothing is stored.
//
// Errors:
//   - errors.ErrNoData for 204, 404 and 410; not retryable
//   - *errors.TransportError for network failures, 429 and 5xx; retryable
//   - *errors.ResourceError for other unexpected statuses and storage failures
func (c *Cache) Fetch(ctx context.Context, req Request, v Validators) (*Result, error) {
	id, err := req.Identity()
	if err != nil {
		return nil, errors.NewConfigError("cache", fmt.Sprintf("invalid url %q", req.URL), err)
	}
	unlock := c.lock(id)
	defer unlock()

	logger := logging.FromContext(ctx).With().
		Str("identity", id).
		Str("url", req.URL).
		Logger()

	stored, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}

	send := v
	switch {
	case stored == nil:
		send = Validators{}
	case send.IsZero():
		send = stored.meta.Validators()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), req.URL, nil)
	if err != nil {
		return nil, errors.NewConfigError("cache", fmt.Sprintf("invalid request for %q", req.URL), err)
	}
	for name, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}
	if c.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if send.ETag != "" {
		httpReq.Header.Set("If-None-Match", send.ETag)
	}
	if send.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", send.LastModified)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeError)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewTransportError(req.Source, req.URL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch code := resp.StatusCode; {
	case code == http.StatusNotModified:
		if stored == nil {
			c.metrics.ObserveFetch(req.Source, metrics.OutcomeError)
			return nil, errors.NewResourceError("fetch", "url", req.URL,
				fmt.Errorf("304 without a stored payload"))
		}
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeNotModified)
		logger.Debug().Msg("Not modified, serving stored payload")
		return &Result{
			Identity:   id,
			URL:        req.URL,
			Payload:    stored.payload,
			Validators: stored.meta.Validators(),
			Changed:    false,
			StatusCode: code,
			FetchedAt:  stored.meta.FetchedAt,
			FromCache:  true,
		}, nil

	case code == http.StatusNoContent || code == http.StatusNotFound || code == http.StatusGone:
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeNoData)
		return nil, fmt.Errorf("%s: status %d: %w", req.URL, code, errors.ErrNoData)

	case code == http.StatusTooManyRequests || code >= 500:
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeError)
		te := errors.NewTransportError(req.Source, req.URL, code, nil)
		te.Message = http.StatusText(code)
		return nil, te

	case code < 200 || code >= 300:
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeError)
		return nil, errors.NewResourceError("fetch", "url", req.URL,
			fmt.Errorf("unexpected status %d", code))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeError)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewTransportError(req.Source, req.URL, resp.StatusCode, err)
	}

	sum := digest(payload)
	changed := stored == nil || stored.meta.SHA256 != sum
	meta := Meta{
		Identity:     id,
		URL:          req.URL,
		Method:       req.method(),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		SHA256:       sum,
		Size:         len(payload),
		Status:       resp.StatusCode,
		FetchedAt:    c.now().UTC(),
	}
	if err := c.store(ctx, meta, payload, changed); err != nil {
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeError)
		return nil, err
	}

	if changed {
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeMiss)
	} else {
		c.metrics.ObserveFetch(req.Source, metrics.OutcomeHit)
	}
	logger.Debug().
		Bool("changed", changed).
		Int("size", len(payload)).
		Msg("Fetched payload")

	return &Result{
		Identity:   id,
		URL:        req.URL,
		Payload:    payload,
		Validators: meta.Validators(),
		Changed:    changed,
		StatusCode: resp.StatusCode,
		FetchedAt:  meta.FetchedAt,
	}, nil
}

// Lookup returns the stored payload for req without touching the network.
// It returns an errors.ErrNotFound error when nothing valid is stored.
func (c *Cache) Lookup(ctx context.Context, req Request) (*Result, error) {
	id, err := req.Identity()
	if err != nil {
		return nil, errors.NewConfigError("cache", fmt.Sprintf("invalid url %q", req.URL), err)
	}
	stored, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.NewNotFoundError("cache entry", id)
	}
	return &Result{
		Identity:   id,
		URL:        stored.meta.URL,
		Payload:    stored.payload,
		Validators: stored.meta.Validators(),
		StatusCode: stored.meta.Status,
		FetchedAt:  stored.meta.FetchedAt,
		FromCache:  true,
	}, nil
}

// Entries lists the metadata of every valid stored response.
func (c *Cache) Entries(ctx context.Context) ([]Meta, error) {
	keys, err := c.backend.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []Meta
	for _, key := range keys {
		id, ok := strings.CutSuffix(key, metaSuffix)
		if !ok {
			continue
		}
		e, err := c.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e.meta)
		}
	}
	return out, nil
}

// load returns the stored entry for id, or nil when there is none. A
// metadata record without a blob, or whose hash disagrees with the blob, is
// the trace of an interrupted write and counts as absent.
func (c *Cache) load(ctx context.Context, id string) (*entry, error) {
	raw, err := c.backend.Get(ctx, id+metaSuffix)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapResource("read", "cache", id, err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		logging.FromContext(ctx).Warn().Str("identity", id).Err(err).Msg("Ignoring unreadable cache metadata")
		return nil, nil
	}

	payload, err := c.backend.Get(ctx, id+dataSuffix)
	if errors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapResource("read", "cache", id, err)
	}
	if digest(payload) != meta.SHA256 {
		logging.FromContext(ctx).Warn().Str("identity", id).Msg("Ignoring cache entry with mismatched hash")
		return nil, nil
	}
	return &entry{meta: meta, payload: payload}, nil
}

// store writes the blob, then the metadata that vouches for it.
func (c *Cache) store(ctx context.Context, meta Meta, payload []byte, writeBlob bool) error {
	if writeBlob {
		if err := c.backend.Put(ctx, meta.Identity+dataSuffix, payload); err != nil {
			return errors.WrapResource("write", "cache", meta.Identity, err)
		}
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.WrapResource("write", "cache", meta.Identity, err)
	}
	if err := c.backend.Put(ctx, meta.Identity+metaSuffix, raw); err != nil {
		return errors.WrapResource("write", "cache", meta.Identity, err)
	}
	return nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
