// Package dataset provides named tabular datasets fetched from a remote
// folder-like store, with lazy load and fingerprint-keyed caching.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// Dataset is one loaded, typed table. Never mutated after load: a
// changed source produces a new fingerprint and a fresh cache entry.
type Dataset struct {
	ID          string
	Columns     []Column
	Rows        []map[string]any
	Fingerprint string
	LoadedAt    time.Time
}

// Column returns the named column, if present.
func (d *Dataset) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Provider loads and caches datasets. Reads are concurrent; cache-miss
// fetches are deduplicated per identifier so at most one fetch per id is
// in flight, with concurrent requesters sharing its result.
type Provider struct {
	source       Source
	logger       *slog.Logger
	fetchTimeout time.Duration
	maxRetries   uint64

	mu    sync.RWMutex
	cache map[string]*Dataset
	group singleflight.Group
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithFetchTimeout bounds a single fetch attempt (default 30s).
func WithFetchTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) { p.fetchTimeout = d }
}

// WithMaxRetries bounds retry attempts on transient fetch failures
// (default 3).
func WithMaxRetries(n int) ProviderOption {
	return func(p *Provider) {
		if n >= 0 {
			p.maxRetries = uint64(n)
		}
	}
}

// NewProvider creates a provider over the given source.
func NewProvider(source Source, logger *slog.Logger, opts ...ProviderOption) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		source:       source,
		logger:       logger.With("component", "dataset"),
		fetchTimeout: 30 * time.Second,
		maxRetries:   3,
		cache:        make(map[string]*Dataset),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Load returns the dataset for id. The current remote bytes are always
// fetched and fingerprinted; the cached parse is reused only when the
// fingerprint matches, so a stale cache entry can never be observed.
func (p *Provider) Load(ctx context.Context, id string) (*Dataset, error) {
	v, err, shared := p.group.Do(id, func() (any, error) {
		return p.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("load shared with concurrent requester", "id", id)
	}
	return v.(*Dataset), nil
}

// Invalidate drops the cache entry for id. The next Load refetches.
func (p *Provider) Invalidate(id string) {
	p.mu.Lock()
	delete(p.cache, id)
	p.mu.Unlock()
	p.logger.Debug("cache invalidated", "id", id)
}

// List enumerates the datasets visible in the store.
func (p *Provider) List(ctx context.Context) ([]FileInfo, error) {
	var entries []FileInfo
	err := p.retry(ctx, func(attemptCtx context.Context) error {
		var listErr error
		entries, listErr = p.source.List(attemptCtx)
		return listErr
	})
	return entries, err
}

func (p *Provider) load(ctx context.Context, id string) (*Dataset, error) {
	var name string
	var data []byte

	err := p.retry(ctx, func(attemptCtx context.Context) error {
		var fetchErr error
		name, data, fetchErr = p.source.Fetch(attemptCtx, id)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	fingerprint := hex.EncodeToString(sum[:])

	p.mu.RLock()
	cached, ok := p.cache[id]
	p.mu.RUnlock()
	if ok && cached.Fingerprint == fingerprint {
		p.logger.Debug("cache hit", "id", id, "fingerprint", fingerprint[:12])
		return cached, nil
	}

	cols, rows, err := Parse(name, data)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		ID:          id,
		Columns:     cols,
		Rows:        rows,
		Fingerprint: fingerprint,
		LoadedAt:    time.Now(),
	}

	p.mu.Lock()
	p.cache[id] = ds
	p.mu.Unlock()

	p.logger.Info("dataset loaded",
		"id", id,
		"rows", len(rows),
		"columns", len(cols),
		"fingerprint", fingerprint[:12],
		"refreshed", ok,
	)
	return ds, nil
}

// retry runs op under the per-attempt fetch timeout with bounded
// exponential backoff. NotFound and parse failures are permanent; only
// transient source errors and deadline hits are retried.
func (p *Provider) retry(ctx context.Context, op func(context.Context) error) error {
	attempt := 0
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.maxRetries), ctx)

	return backoff.Retry(func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()

		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = &SourceUnavailableError{Err: err}
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		p.logger.Warn("transient store failure", "attempt", attempt, "error", err)
		return err
	}, bo)
}
