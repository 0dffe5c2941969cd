// Package sheetsync wires the client-side caching and synchronization layer
// together: cache store, request queue, data provider client, sync manager,
// performance monitor, and the admin API. Callers construct one Client at
// process start and pass it by reference; there are no package-level
// singletons.
package sheetsync

import (
	"context"
	"os"

	"github.com/sheetsync/sheetsync/internal/cache"
	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/metrics"
	"github.com/sheetsync/sheetsync/internal/provider"
	"github.com/sheetsync/sheetsync/internal/queue"
	s3store "github.com/sheetsync/sheetsync/internal/storage/s3"
	"github.com/sheetsync/sheetsync/internal/syncer"
	"github.com/sheetsync/sheetsync/pkg/api"
	"github.com/sheetsync/sheetsync/pkg/utils"
)

// Client is the assembled caching/sync layer.
type Client struct {
	Config   *config.Configuration
	Store    *cache.Store
	Queue    *queue.Queue
	Provider *provider.Client
	Sync     *syncer.Manager
	Monitor  *metrics.Collector

	server *api.Server
	logger *utils.Logger
}

// New builds a Client from the configuration.
func New(ctx context.Context, cfg *config.Configuration) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := utils.ParseLogLevel(cfg.Global.LogLevel)
	logger := utils.NewLogger(level, os.Stdout)

	snapshots, err := buildSnapshotStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	store := cache.NewStore(cache.Config{
		MaxEntries:    cfg.Cache.MaxEntries,
		SweepInterval: cfg.Cache.SweepInterval,
	}, snapshots, logger)

	q := queue.New(queue.Config{MaxConcurrent: cfg.Queue.MaxConcurrent})

	monitor := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Namespace: "sheetsync",
	}, func() float64 { return float64(q.Active()) })

	providerClient, err := provider.NewClient(cfg, store, q, monitor, logger)
	if err != nil {
		return nil, err
	}

	manager := syncer.NewManager(cfg, providerClient, store, logger)

	c := &Client{
		Config:   cfg,
		Store:    store,
		Queue:    q,
		Provider: providerClient,
		Sync:     manager,
		Monitor:  monitor,
		logger:   logger,
	}

	if cfg.Metrics.Enabled {
		serverCfg := api.DefaultServerConfig()
		serverCfg.Address = cfg.Metrics.Address
		c.server = api.NewServer(serverCfg, providerClient, manager, store, monitor, logger)
	}

	return c, nil
}

// Start launches the admin API (when enabled) and begins background sync.
func (c *Client) Start(ctx context.Context) error {
	if c.server != nil {
		c.server.StartBackground()
	}
	return c.Sync.StartAutoSync(ctx)
}

// Close stops background sync, shuts down the admin API, and writes a final
// cache snapshot.
func (c *Client) Close(ctx context.Context) error {
	c.Sync.StopAutoSync()
	c.Queue.Close()

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			c.logger.Warn("admin API shutdown: %v", err)
		}
	}

	return c.Store.Close()
}

func buildSnapshotStore(ctx context.Context, cfg config.CacheConfig) (cache.SnapshotStore, error) {
	if cfg.S3Snapshot.Enabled {
		store, err := s3store.NewSnapshotStore(ctx, s3store.Config{
			Bucket: cfg.S3Snapshot.Bucket,
			Key:    cfg.S3Snapshot.Key,
			Region: cfg.S3Snapshot.Region,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	if cfg.SnapshotPath != "" {
		store, err := cache.NewFileSnapshotStore(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, nil
}
