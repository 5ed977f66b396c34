package eventconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"crvs/internal/events/scope"
	"crvs/pkg/platform/sentinel"
	"crvs/pkg/requestcontext"
)

const (
	defaultRemoteCacheSize = 128
	defaultRemoteCacheTTL  = 5 * time.Minute
	defaultRemoteTimeout   = 10 * time.Second
	listKey                = "\x00list"
)

type remoteEntry struct {
	cfgs     []*EventConfig
	storedAt time.Time
}

// RemoteSource fetches configurations from the country configuration service
// (GET {baseURL}/events). Results are cached in an LRU with a TTL and
// concurrent misses share one request.
type RemoteSource struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	cache   *lru.Cache[string, remoteEntry]
	group   singleflight.Group
}

// RemoteOption configures a RemoteSource.
type RemoteOption func(*RemoteSource)

func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteSource) {
		if c != nil {
			r.client = c
		}
	}
}

func WithCacheTTL(ttl time.Duration) RemoteOption {
	return func(r *RemoteSource) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithFetchTimeout bounds one fetch of the configuration list. The fetch is
// shared by concurrent callers and does not end when one of them gives up.
func WithFetchTimeout(d time.Duration) RemoteOption {
	return func(r *RemoteSource) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func withClock(now func() time.Time) RemoteOption {
	return func(r *RemoteSource) {
		r.now = now
	}
}

func NewRemoteSource(baseURL string, opts ...RemoteOption) (*RemoteSource, error) {
	cache, err := lru.New[string, remoteEntry](defaultRemoteCacheSize)
	if err != nil {
		return nil, err
	}
	r := &RemoteSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		ttl:     defaultRemoteCacheTTL,
		timeout: defaultRemoteTimeout,
		now:     time.Now,
		cache:   cache,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *RemoteSource) Get(ctx context.Context, eventType string) (*EventConfig, error) {
	key := scope.Slug(eventType)
	if entry, ok := r.fresh(key); ok {
		return entry.cfgs[0], nil
	}
	if _, err := r.load(ctx); err != nil {
		return nil, err
	}
	if entry, ok := r.fresh(key); ok {
		return entry.cfgs[0], nil
	}
	return nil, sentinel.ErrNotFound
}

func (r *RemoteSource) List(ctx context.Context) ([]*EventConfig, error) {
	if entry, ok := r.fresh(listKey); ok {
		return entry.cfgs, nil
	}
	return r.load(ctx)
}

// Invalidate drops every cached configuration.
func (r *RemoteSource) Invalidate() {
	r.cache.Purge()
}

func (r *RemoteSource) fresh(key string) (remoteEntry, bool) {
	entry, ok := r.cache.Get(key)
	if !ok || r.now().Sub(entry.storedAt) >= r.ttl {
		return remoteEntry{}, false
	}
	return entry, true
}

func (r *RemoteSource) load(ctx context.Context) ([]*EventConfig, error) {
	v, err, _ := r.group.Do(listKey, func() (any, error) {
		if entry, ok := r.fresh(listKey); ok {
			return entry.cfgs, nil
		}
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		set, err := r.fetch(flightCtx)
		if err != nil {
			return nil, err
		}
		cfgs, _ := set.List(flightCtx)
		now := r.now()
		for _, cfg := range cfgs {
			r.cache.Add(cfg.Slug(), remoteEntry{cfgs: []*EventConfig{cfg}, storedAt: now})
		}
		r.cache.Add(listKey, remoteEntry{cfgs: cfgs, storedAt: now})
		return cfgs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*EventConfig), nil
}

func (r *RemoteSource) fetch(ctx context.Context) (*Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("build event config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := requestcontext.BearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("fetch event configs: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("fetch event configs: status %d", resp.StatusCode))
	}

	var cfgs []EventConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfgs); err != nil {
		return nil, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("decode event configs: %w", err))
	}
	set, err := NewSet(cfgs)
	if err != nil {
		return nil, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("invalid event configs: %w", err))
	}
	return set, nil
}
