// Package testhelper provides fixtures for connector tests: an in-memory
// fetcher, archive builders and record collection.
package testhelper

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/agentstation/fundingscape/pkg/cache"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// LoadTestdata loads a file from the caller's testdata directory.
func LoadTestdata(t *testing.T, filename string) []byte {
	t.Helper()

	testdataPath := filepath.Join("testdata", filename)
	data, err := os.ReadFile(testdataPath) //nolint:gosec // Test file paths are controlled
	if err != nil {
		t.Fatalf("Failed to load testdata file %s: %v", testdataPath, err)
	}
	return data
}

// Fetcher serves payloads by exact URL. Unknown URLs answer like a 404.
type Fetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	failures map[string]error
	Requests []string
}

// NewFetcher returns a Fetcher over payloads.
func NewFetcher(payloads map[string][]byte) *Fetcher {
	return &Fetcher{payloads: payloads, failures: map[string]error{}}
}

// Fail makes every fetch of url return err.
func (f *Fetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[url] = err
}

// Fetch implements sources.Fetcher.
func (f *Fetcher) Fetch(_ context.Context, req cache.Request) (*cache.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req.URL)
	if err, ok := f.failures[req.URL]; ok {
		return nil, err
	}
	payload, ok := f.payloads[req.URL]
	if !ok {
		return nil, fmt.Errorf("%s: status 404: %w", req.URL, errors.ErrNoData)
	}
	return &cache.Result{URL: req.URL, Payload: payload, Changed: true, StatusCode: 200}, nil
}

// Collected is everything a connector yielded, normalized.
type Collected struct {
	Records  []sources.RawRecord
	Shapes   []sources.Shape
	Problems [][]error // Per shape
	Rejected []error
	Errors   []error // Yielded by Connect
}

// Collect runs conn to completion against f and normalizes every record.
// Rejected records are left out of Shapes.
func Collect(t *testing.T, conn sources.Connector, f sources.Fetcher) *Collected {
	t.Helper()
	out := &Collected{}
	for rec, err := range conn.Connect(context.Background(), f) {
		if err != nil {
			out.Errors = append(out.Errors, err)
			continue
		}
		out.Records = append(out.Records, rec)
		shape, problems := conn.Normalize(rec)
		if rejected := firstRejection(problems); rejected != nil {
			out.Rejected = append(out.Rejected, rejected)
			continue
		}
		out.Shapes = append(out.Shapes, shape)
		out.Problems = append(out.Problems, problems)
	}
	return out
}

func firstRejection(errs []error) error {
	for _, err := range errs {
		if errors.IsRejection(err) {
			return err
		}
	}
	return nil
}

// Shape returns the collected shape with localID, failing the test if
// there is none.
func (c *Collected) Shape(t *testing.T, localID string) sources.Shape {
	t.Helper()
	for _, s := range c.Shapes {
		if s.LocalID == localID {
			return s
		}
	}
	t.Fatalf("no shape with local id %q", localID)
	return sources.Shape{}
}

// Zip builds a ZIP archive holding files.
func Zip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("zip %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip: %v", err)
	}
	return buf.Bytes()
}

// TarOfGzip builds a tar archive whose members are the gzipped files.
func TarOfGzip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		if _, err := zw.Write([]byte(files[name])); err != nil {
			t.Fatalf("gzip %s: %v", name, err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip %s: %v", name, err)
		}
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(gz.Len()), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar %s: %v", name, err)
		}
		if _, err := tw.Write(gz.Bytes()); err != nil {
			t.Fatalf("tar %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar: %v", err)
	}
	return buf.Bytes()
}
