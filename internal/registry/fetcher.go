package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/extkit-labs/extkit/internal/platform"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const userAgent = "extkit-registry"

// Endpoints are the remote URLs the fetcher talks to.
type Endpoints struct {
	Registry        string // full registry payload
	Version         string // {"version": N}
	Popularity      string // id -> {totalDownloads, githubStars}
	PackageTemplate string // contains {id} and {version}
}

// Sink receives registry data as soon as it is available.
type Sink interface {
	ApplyRegistryData(Payload)
}

// Popularity is one record from the popularity endpoint.
type Popularity struct {
	TotalDownloads *int64 `json:"totalDownloads"`
	GithubStars    *int64 `json:"githubStars"`
}

type versionDoc struct {
	Version int `json:"version"`
}

// Fetcher runs registry refreshes. At most one refresh is in flight; every
// Fetch call made while it runs observes the same outcome.
type Fetcher struct {
	endpoints    Endpoints
	cache        *Cache
	files        platform.Files
	sink         Sink
	httpClient   *http.Client
	bundledPath  string
	capabilities []string
	fs           afero.Fs
	logger       *zap.Logger

	requests singleflight.Group

	mu       sync.Mutex
	inflight *flight
}

// flight is one refresh. settled closes when callers have their answer,
// which may be well before done closes: a refresh that answered from the
// cache keeps running to check the network.
type flight struct {
	once    sync.Once
	settled chan struct{}
	done    chan struct{}
	err     error
}

func (fl *flight) settle(err error) {
	fl.once.Do(func() {
		fl.err = err
		close(fl.settled)
	})
}

func (fl *flight) isSettled() bool {
	select {
	case <-fl.settled:
		return true
	default:
		return false
	}
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithBundledSnapshot sets the path of the read-only snapshot shipped with
// the host, used when there is no cache and the network fails.
func WithBundledSnapshot(path string) Option {
	return func(f *Fetcher) {
		f.bundledPath = path
	}
}

// WithCapabilities sets the host capabilities used to filter entries.
func WithCapabilities(caps []string) Option {
	return func(f *Fetcher) {
		f.capabilities = caps
	}
}

// WithFs sets the filesystem package downloads are written to.
func WithFs(fs afero.Fs) Option {
	return func(f *Fetcher) {
		f.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a Fetcher that surfaces data to sink. files is used to
// read the bundled snapshot.
func NewFetcher(endpoints Endpoints, cache *Cache, files platform.Files, sink Sink, opts ...Option) *Fetcher {
	f := &Fetcher{
		endpoints:  endpoints,
		cache:      cache,
		files:      files,
		sink:       sink,
		httpClient: http.DefaultClient,
		fs:         afero.NewOsFs(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch refreshes the registry. Without force, cached data is surfaced and
// returned before any network round trip; the version check and any needed
// download continue in the background. With force the version check is
// skipped and the full registry is downloaded. If a refresh is already
// running, Fetch joins it instead of starting another.
//
// Fetch only fails when no data source at all was available. Cancelling ctx
// stops the wait, not the refresh.
func (f *Fetcher) Fetch(ctx context.Context, force bool) error {
	f.mu.Lock()
	fl := f.inflight
	if fl == nil {
		fl = &flight{settled: make(chan struct{}), done: make(chan struct{})}
		f.inflight = fl
		go f.run(context.WithoutCancel(ctx), fl, force)
	}
	f.mu.Unlock()

	select {
	case <-fl.settled:
		return fl.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the refresh in flight, if any, has finished its
// background work.
func (f *Fetcher) Wait() {
	f.mu.Lock()
	fl := f.inflight
	f.mu.Unlock()
	if fl != nil {
		<-fl.done
	}
}

func (f *Fetcher) run(ctx context.Context, fl *flight, force bool) {
	defer func() {
		f.mu.Lock()
		f.inflight = nil
		f.mu.Unlock()
		close(fl.done)
	}()

	if force {
		persisted, err := f.refreshForced(ctx)
		fl.settle(err)
		if persisted {
			f.patchQuietly(ctx)
		}
		return
	}

	rec := f.cache.Read()
	if rec != nil {
		f.surface(rec.Payload)
		fl.settle(nil)
	}

	remote, err := f.checkVersion(ctx)
	if err != nil {
		f.logger.Warn("registry version check failed", zap.Error(err))
		if rec == nil {
			fl.settle(f.fallBackToBundled(err))
		}
		return
	}

	if rec != nil && remote == rec.Version {
		f.logger.Debug("registry cache is current", zap.Int("version", remote))
		f.patchQuietly(ctx)
		return
	}

	payload, err := f.downloadRegistry(ctx)
	if err != nil {
		f.logger.Warn("registry download failed", zap.Error(err))
		if rec == nil {
			fl.settle(f.fallBackToBundled(err))
		}
		return
	}

	f.cache.Write(CacheRecord{Version: remote, Payload: payload})
	if fl.isSettled() {
		f.logger.Debug("applying newer registry after cached answer", zap.Int("version", remote))
	}
	f.surface(payload)
	fl.settle(nil)
	f.patchQuietly(ctx)
}

// refreshForced downloads the full registry without a version check. On
// failure it falls back to the cache and then to the bundled snapshot.
func (f *Fetcher) refreshForced(ctx context.Context) (persisted bool, err error) {
	prev := f.cache.Read()

	payload, err := f.downloadRegistry(ctx)
	if err != nil {
		f.logger.Warn("forced registry download failed", zap.Error(err))
		if prev != nil {
			f.surface(prev.Payload)
			return false, nil
		}
		return false, f.fallBackToBundled(err)
	}

	version := 0
	if prev != nil {
		version = prev.Version
	}
	persisted = f.cache.Write(CacheRecord{Version: version, Payload: payload})
	f.surface(payload)
	return persisted, nil
}

// fallBackToBundled surfaces the bundled snapshot without caching it, so the
// next refresh still goes to the network. cause is returned when there is
// no usable snapshot.
func (f *Fetcher) fallBackToBundled(cause error) error {
	if f.bundledPath == "" {
		return cause
	}
	text, ok := f.files.ReadText(f.bundledPath)
	if !ok {
		return cause
	}
	var payload Payload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		f.logger.Warn("bundled registry is unreadable", zap.String("path", f.bundledPath), zap.Error(err))
		return cause
	}
	f.logger.Info("using bundled registry snapshot", zap.String("path", f.bundledPath))
	f.surface(FilterCapabilities(payload, f.capabilities))
	return nil
}

func (f *Fetcher) surface(p Payload) {
	if f.sink != nil {
		f.sink.ApplyRegistryData(p)
	}
}

func (f *Fetcher) checkVersion(ctx context.Context) (int, error) {
	body, err := f.get(ctx, "version check", f.endpoints.Version)
	if err != nil {
		return 0, err
	}
	var doc versionDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, &NetworkError{Op: "version check", URL: f.endpoints.Version, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return doc.Version, nil
}

// downloadRegistry fetches and filters the full registry.
func (f *Fetcher) downloadRegistry(ctx context.Context) (Payload, error) {
	body, err := f.get(ctx, "registry download", f.endpoints.Registry)
	if err != nil {
		return nil, err
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &NetworkError{Op: "registry download", URL: f.endpoints.Registry, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return FilterCapabilities(payload, f.capabilities), nil
}

// patchDownloadCounts merges popularity metrics into the cached payload in
// place. The version number is kept and the catalog is not notified.
// Entries without a popularity record get null counts.
func (f *Fetcher) patchDownloadCounts(ctx context.Context) error {
	if f.endpoints.Popularity == "" {
		return nil
	}
	body, err := f.get(ctx, "popularity", f.endpoints.Popularity)
	if err != nil {
		return err
	}
	var counts map[string]Popularity
	if err := json.Unmarshal(body, &counts); err != nil {
		return fmt.Errorf("parsing popularity: %w", err)
	}

	rec := f.cache.Read()
	if rec == nil {
		return nil
	}
	for id, entry := range rec.Payload {
		if entry == nil {
			continue
		}
		p := counts[id]
		entry.TotalDownloads = p.TotalDownloads
		entry.GithubStars = p.GithubStars
	}
	if !f.cache.Write(*rec) {
		return errors.New("writing patched registry cache")
	}
	return nil
}

func (f *Fetcher) patchQuietly(ctx context.Context) {
	if err := f.patchDownloadCounts(ctx); err != nil {
		f.logger.Debug("popularity patch skipped", zap.Error(err))
	}
}

// get performs a GET, sharing the response between concurrent callers of
// the same URL.
func (f *Fetcher) get(ctx context.Context, op, url string) ([]byte, error) {
	if url == "" {
		return nil, &NetworkError{Op: op, URL: url, Err: errors.New("no endpoint configured")}
	}
	v, err, _ := f.requests.Do(url, func() (any, error) {
		return f.doGet(ctx, url)
	})
	if err != nil {
		return nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	return v.([]byte), nil
}

func (f *Fetcher) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}
