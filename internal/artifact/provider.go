package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	"github.com/couchcryptid/wildfire-imputer/internal/observability"
	"golang.org/x/sync/singleflight"
)

// ErrNotLoaded is reported by CheckReadiness until the artifact is loaded.
var ErrNotLoaded = errors.New("imputer artifact not loaded")

// Fetcher downloads the artifact to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, dst string) error
}

// Provider loads the artifact on first use and shares the resulting engine.
// Concurrent first callers wait on a single load; a failed load is not
// remembered and the next call retries.
type Provider struct {
	path    string
	fetcher Fetcher
	cfg     imputer.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	group  singleflight.Group
	engine atomic.Pointer[imputer.Engine]
}

// NewProvider creates a Provider for the artifact at path. fetcher may be
// nil, in which case a missing file is an error.
func NewProvider(path string, fetcher Fetcher, cfg imputer.Config, logger *slog.Logger, metrics *observability.Metrics) *Provider {
	return &Provider{
		path:    path,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Engine returns the loaded engine, loading the artifact if needed.
func (p *Provider) Engine(ctx context.Context) (*imputer.Engine, error) {
	if e := p.engine.Load(); e != nil {
		return e, nil
	}

	ch := p.group.DoChan("load", func() (any, error) {
		if e := p.engine.Load(); e != nil {
			return e, nil
		}
		// Detached so one canceled caller does not fail the others.
		e, err := p.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		p.engine.Store(e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*imputer.Engine), nil
	}
}

func (p *Provider) load(ctx context.Context) (*imputer.Engine, error) {
	start := time.Now()

	if _, err := os.Stat(p.path); errors.Is(err, os.ErrNotExist) && p.fetcher != nil {
		p.logger.Info("artifact not found locally, fetching", "path", p.path)
		if err := p.fetcher.Fetch(ctx, p.path); err != nil {
			return nil, fmt.Errorf("fetch artifact: %w", err)
		}
	}

	model, err := Load(p.path)
	if err != nil {
		p.logger.Error("artifact load failed", "path", p.path, "error", err)
		return nil, err
	}

	p.logger.Info("artifact loaded",
		"path", p.path,
		"records", model.Dataset.Len(),
		"features", len(model.Dataset.Numeric()),
		"trained_at", model.TrainedAt,
		"duration", time.Since(start),
	)
	if p.metrics != nil {
		p.metrics.ArtifactLoaded.Set(1)
	}
	return imputer.New(model, p.cfg, p.logger, p.metrics), nil
}

// Impute loads the engine if needed and imputes the record.
func (p *Provider) Impute(ctx context.Context, input domain.Record, opts imputer.Options) (domain.Record, error) {
	e, err := p.Engine(ctx)
	if err != nil {
		return nil, err
	}
	return e.Impute(ctx, input, opts)
}

// Schema returns the reference corpus schema, loading the engine if needed.
func (p *Provider) Schema(ctx context.Context) (domain.Schema, error) {
	e, err := p.Engine(ctx)
	if err != nil {
		return domain.Schema{}, err
	}
	return e.Schema(), nil
}

// CheckReadiness returns nil once the artifact has been loaded.
func (p *Provider) CheckReadiness(_ context.Context) error {
	if p.engine.Load() == nil {
		return ErrNotLoaded
	}
	return nil
}
