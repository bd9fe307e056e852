// Package blob provides the byte stores behind the conditional cache: a local
// directory, process memory, and S3-compatible object storage.
package blob

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/agentstation/fundingscape/pkg/errors"
)

// Store is a flat key/value byte store. Get returns an error satisfying
// errors.IsNotFound when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Driver names a Store implementation.
type Driver string

// Supported drivers.
const (
	DriverFilesystem Driver = "fs"
	DriverMemory     Driver = "memory"
	DriverS3         Driver = "s3"
)

// Location is a parsed cache location.
type Location struct {
	Driver Driver
	Path   string // directory for fs
	Bucket string // bucket for s3
	Prefix string // key prefix for s3
}

// ParseLocation accepts a plain path, file:///path, mem:// or s3://bucket/prefix.
func ParseLocation(location string) (Location, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Location{}, errors.NewConfigError("cache", "location is empty", nil)
	}
	if !strings.Contains(location, "://") {
		return Location{Driver: DriverFilesystem, Path: filepath.Clean(location)}, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return Location{}, errors.NewConfigError("cache", fmt.Sprintf("invalid location %q", location), err)
	}
	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return Location{}, errors.NewConfigError("cache", fmt.Sprintf("file location %q has no path", location), nil)
		}
		return Location{Driver: DriverFilesystem, Path: filepath.FromSlash(u.Path)}, nil
	case "mem", "memory":
		return Location{Driver: DriverMemory}, nil
	case "s3":
		if u.Host == "" {
			return Location{}, errors.NewConfigError("cache", fmt.Sprintf("s3 location %q has no bucket", location), nil)
		}
		prefix := strings.Trim(u.Path, "/")
		if prefix != "" {
			prefix += "/"
		}
		return Location{Driver: DriverS3, Bucket: u.Host, Prefix: prefix}, nil
	default:
		return Location{}, errors.NewConfigError("cache", fmt.Sprintf("unsupported location scheme %q", u.Scheme), nil)
	}
}

// Open returns the Store for location. s3cfg supplies region, endpoint and
// credentials when the location is an s3:// URL; Bucket and Prefix come from
// the location itself.
func Open(ctx context.Context, location string, s3cfg S3Config) (Store, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	switch loc.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		s3cfg.Bucket = loc.Bucket
		s3cfg.Prefix = loc.Prefix
		return NewS3(ctx, s3cfg)
	default:
		return NewFilesystem(loc.Path)
	}
}

// sanitizeKey keeps a key inside the store root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.NewValidationError("key", key, "empty key")
	}
	if strings.Contains(key, "..") {
		return "", errors.NewValidationError("key", key, "contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", errors.NewValidationError("key", key, "absolute key")
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}
