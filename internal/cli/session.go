package cli

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/extkit-labs/extkit/internal/catalog"
	"github.com/extkit-labs/extkit/internal/config"
	"github.com/extkit-labs/extkit/internal/installer"
	"github.com/extkit-labs/extkit/internal/lifecycle"
	"github.com/extkit-labs/extkit/internal/logging"
	"github.com/extkit-labs/extkit/internal/platform"
	"github.com/extkit-labs/extkit/internal/registry"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	pendingFile  = "pending.json"
	downloadsDir = "downloads"
)

// session wires the components one command invocation needs.
type session struct {
	settings  config.Settings
	logger    *zap.Logger
	fs        afero.Fs
	files     *platform.FileStore
	cache     *registry.Cache
	catalog   *catalog.Catalog
	installer *installer.DirInstaller
	fetcher   *registry.Fetcher
	tracker   *lifecycle.Tracker
}

// sessionOptions lets tests swap the filesystem and HTTP client.
type sessionOptions struct {
	fs         afero.Fs
	httpClient *http.Client
	logger     *zap.Logger
}

var testSessionOptions *sessionOptions

func newSession() *session {
	config.Load()
	return buildSession(config.Current(), testSessionOptions)
}

func buildSession(settings config.Settings, opts *sessionOptions) *session {
	if opts == nil {
		opts = &sessionOptions{}
	}
	logger := opts.logger
	if logger == nil {
		logger = logging.New(verbose)
	}
	fs := opts.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	client := opts.httpClient
	if client == nil {
		client = &http.Client{Timeout: settings.HTTPTimeout}
	}

	s := &session{settings: settings, logger: logger, fs: fs}
	s.files = platform.NewFileStore(fs, logging.Named(logger, "files"))
	s.cache = registry.NewCache(s.files, settings.StateDir, logging.Named(logger, "cache"))
	s.installer = installer.NewDirInstaller(fs, settings.ExtensionsDir, logging.Named(logger, "installer"))
	s.catalog = catalog.New(settings.HostAPIVersion, s.installer,
		catalog.WithLogger(logging.Named(logger, "catalog")))
	s.fetcher = registry.NewFetcher(
		registry.Endpoints{
			Registry:        settings.RegistryURL,
			Version:         settings.RegistryVersionURL,
			Popularity:      settings.PopularityURL,
			PackageTemplate: settings.PackageURLTemplate,
		},
		s.cache, s.files, s.catalog,
		registry.WithHTTPClient(client),
		registry.WithBundledSnapshot(settings.BundledRegistry),
		registry.WithCapabilities(settings.HostCapabilities),
		registry.WithFs(fs),
		registry.WithLogger(logging.Named(logger, "fetcher")),
	)
	s.tracker = lifecycle.New(s.catalog, s.installer, s.files,
		lifecycle.WithStateFile(filepath.Join(settings.StateDir, pendingFile)),
		lifecycle.WithLogger(logging.Named(logger, "lifecycle")))
	return s
}

// loadInstalled scans the extensions root into the catalog.
func (s *session) loadInstalled() error {
	if _, err := s.installer.Load(s.catalog); err != nil {
		return fmt.Errorf("scanning installed extensions: %w", err)
	}
	return nil
}

// loadRegistry fetches registry data into the catalog and waits for any
// background refresh, since the process exits afterwards.
func (s *session) loadRegistry(ctx context.Context, force bool) error {
	if err := s.fetcher.Fetch(ctx, force); err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	s.fetcher.Wait()
	return nil
}

// loadAll populates both sides of the catalog.
func (s *session) loadAll(ctx context.Context) error {
	if err := s.loadInstalled(); err != nil {
		return err
	}
	return s.loadRegistry(ctx, false)
}

func (s *session) close() {
	_ = s.logger.Sync()
}
