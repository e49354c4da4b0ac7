// Package fetch mirrors a remote object-storage prefix into a local model
// directory before the service starts loading models.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"captiond/internal/common/fsutil"
)

const defaultConcurrency = 4

// Object is a single remote blob.
type Object struct {
	Key  string
	Size int64
}

// ObjectStore is the storage backend the Fetcher mirrors from.
type ObjectStore interface {
	// List returns every object under prefix in container.
	List(ctx context.Context, container, prefix string) ([]Object, error)
	// Download streams one object to w.
	Download(ctx context.Context, container, key string, w io.Writer) error
}

// StoreFactory builds an ObjectStore for a URI scheme. It is called only
// when a remote URI is configured.
type StoreFactory func(ctx context.Context, scheme string) (ObjectStore, error)

// Config tunes a Fetcher.
type Config struct {
	// Store overrides the backend; when nil the GCS store is built on demand.
	Store ObjectStore
	// AllowAnonymous permits anonymous access when no ambient credentials exist.
	AllowAnonymous bool
	// Endpoint overrides the storage API endpoint (emulators, tests).
	Endpoint string
	// Concurrency bounds parallel downloads (default 4).
	Concurrency int
	Log         zerolog.Logger
}

// Fetcher copies a remote prefix into a local directory.
type Fetcher struct {
	cfg      Config
	newStore StoreFactory
}

// New constructs a Fetcher from cfg.
func New(cfg Config) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	f := &Fetcher{cfg: cfg}
	f.newStore = func(ctx context.Context, scheme string) (ObjectStore, error) {
		if cfg.Store != nil {
			return cfg.Store, nil
		}
		if scheme != "gs" {
			return nil, fmt.Errorf("%w: unsupported scheme %q (supported: gs)", ErrInvalidURI, scheme)
		}
		return NewGCSStore(ctx, GCSConfig{AllowAnonymous: cfg.AllowAnonymous, Endpoint: cfg.Endpoint, Log: cfg.Log})
	}
	return f
}

// Fetch mirrors remoteURI into localDir. An empty remoteURI is a no-op and
// leaves localDir untouched.
//
// Fetch is DESTRUCTIVE: once the remote listing succeeds, every existing
// entry of localDir is removed so stale and fresh artifacts never mix.
func (f *Fetcher) Fetch(ctx context.Context, remoteURI, localDir string) error {
	if strings.TrimSpace(remoteURI) == "" {
		f.cfg.Log.Info().Msg("remote model uri not set; skipping download (local mode)")
		return nil
	}
	loc, err := ParseURI(remoteURI)
	if err != nil {
		return err
	}
	if strings.TrimSpace(localDir) == "" {
		return fmt.Errorf("fetch %s: local directory not configured", loc)
	}
	dir, err := fsutil.ExpandHome(localDir)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", loc, err)
	}
	store, err := f.newStore(ctx, loc.Scheme)
	if err != nil {
		return err
	}

	start := time.Now()
	objs, err := store.List(ctx, loc.Container, loc.Prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", loc, err)
	}
	type job struct {
		key  string
		dest string
	}
	var jobs []job
	for _, o := range objs {
		rel, ok := relativeKey(loc.Prefix, o.Key)
		if !ok {
			f.cfg.Log.Debug().Str("key", o.Key).Msg("skipping object outside prefix")
			continue
		}
		dest, err := fsutil.JoinWithin(dir, rel)
		if err != nil {
			return fmt.Errorf("%w: object %q: %v", ErrInvalidURI, o.Key, err)
		}
		jobs = append(jobs, job{key: o.Key, dest: dest})
	}
	if len(jobs) == 0 {
		return fmt.Errorf("%w: no objects under %s", ErrNotFound, loc)
	}

	f.cfg.Log.Warn().Str("dir", dir).Msg("clearing local model directory before download")
	if err := fsutil.ClearDir(dir); err != nil {
		return fmt.Errorf("fetch %s: %w", loc, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			f.cfg.Log.Info().Str("src", loc.Scheme+"://"+loc.Container+"/"+j.key).Str("dest", j.dest).Msg("downloading")
			return downloadTo(gctx, store, loc.Container, j.key, j.dest)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch %s: %w", loc, err)
	}
	f.cfg.Log.Info().Str("uri", loc.String()).Int("objects", len(jobs)).Dur("dur", time.Since(start)).Msg("remote model download finished")
	return nil
}

func downloadTo(ctx context.Context, store ObjectStore, container, key, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := store.Download(ctx, container, key, out); err != nil {
		_ = out.Close()
		return fmt.Errorf("download %s: %w", key, err)
	}
	return out.Close()
}
