package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sheetsync/sheetsync/internal/cache"
	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/metrics"
	"github.com/sheetsync/sheetsync/internal/queue"
	"github.com/sheetsync/sheetsync/pkg/errors"
	"github.com/sheetsync/sheetsync/pkg/retry"
	"github.com/sheetsync/sheetsync/pkg/utils"
)

// Result is the outcome of a provider operation.
type Result struct {
	Success   bool   `json:"success"`
	Data      []Row  `json:"data,omitempty"`
	Raw       string `json:"raw,omitempty"`
	FromCache bool   `json:"fromCache"`
	Stale     bool   `json:"stale"`
	Mock      bool   `json:"mock"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

// FetchOptions controls cache behavior for a read.
type FetchOptions struct {
	// UseCache enables the cache-first check
	UseCache bool

	// ForceRefresh bypasses the cache check but still stores the result
	ForceRefresh bool

	// QueryRange distinguishes cached query variants of one collection;
	// empty means the full collection
	QueryRange string
}

// DefaultFetchOptions returns the options for an ordinary cache-first read.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{UseCache: true}
}

// Client issues fetch/add/update/delete calls to the remote collection
// store. Reads are cache-first; remote calls go through the request queue
// and are retried with exponential backoff. Exhausted retries fall back to
// the last-known stale cache entry when one exists.
type Client struct {
	cfg      config.ProviderConfig
	cacheCfg config.CacheConfig

	store    *cache.Store
	queue    *queue.Queue
	wire     *wireClient
	retryer  *retry.Retryer
	registry *Registry
	monitor  *metrics.Collector
	logger   *utils.Logger

	mu       sync.RWMutex
	mockMode bool
}

// NewClient builds a provider client from the configuration. With no
// endpoint configured the client starts in mock mode and serves the
// built-in fallback dataset.
func NewClient(cfg *config.Configuration, store *cache.Store, q *queue.Queue,
	monitor *metrics.Collector, logger *utils.Logger) (*Client, error) {

	registry, err := NewRegistry(cfg.Sync.Collections)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = utils.NewLogger(utils.INFO, nil)
	}

	retryer := retry.New(retry.Config{
		MaxAttempts:  cfg.Provider.MaxRetries,
		InitialDelay: cfg.Provider.RetryBaseDelay,
		Multiplier:   2.0,
	})

	c := &Client{
		cfg:      cfg.Provider,
		cacheCfg: cfg.Cache,
		store:    store,
		queue:    q,
		retryer:  retryer,
		registry: registry,
		monitor:  monitor,
		logger:   logger.WithComponent("provider"),
		mockMode: cfg.Provider.Endpoint == "",
	}

	if cfg.Provider.Endpoint != "" {
		c.wire = newWireClient(cfg.Provider.Endpoint)
	}

	return c, nil
}

// Registry returns the validated collection registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// MockMode reports whether reads are served from the built-in dataset.
func (c *Client) MockMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mockMode
}

// SetMockMode switches between remote and built-in data. Enabling mock mode
// with no endpoint configured is a no-op: there is nothing to switch back to.
func (c *Client) SetMockMode(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !enabled && c.wire == nil {
		return
	}
	c.mockMode = enabled
}

// CacheKey returns the composite cache key for a collection and query range.
func CacheKey(collection, queryRange string) string {
	if queryRange == "" {
		queryRange = "all"
	}
	return collection + "_" + queryRange
}

// Fetch returns the rows of a collection, cache-first. On a miss or forced
// refresh the remote call runs through the request queue with retries; on
// final failure the last-known stale entry is returned tagged stale, or an
// error when none exists.
func (c *Client) Fetch(ctx context.Context, collection string, opts FetchOptions) (*Result, error) {
	schema, err := c.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}

	key := CacheKey(collection, opts.QueryRange)

	if opts.UseCache && !opts.ForceRefresh {
		if entry, ok := c.store.Get(key); ok {
			c.monitor.RecordCacheHit(collection)
			return &Result{
				Success:   true,
				Data:      rowsOf(entry.Payload),
				FromCache: true,
			}, nil
		}
		c.monitor.RecordCacheMiss(collection)
	}

	if c.MockMode() {
		rows := mockRows(collection)
		c.store.Set(key, rows, c.cacheCfg.TTLFor(collection))
		return &Result{Success: true, Data: rows, Mock: true}, nil
	}

	start := time.Now()
	payload, err := c.fetchRemote(ctx, schema)
	if err != nil {
		c.monitor.RecordError(collection, string(errors.CodeOf(err)))
		c.logger.Warn("fetch %s failed: %v", collection, err)

		if entry, ok := c.store.GetStale(key); ok {
			c.monitor.RecordStaleFallback(collection)
			return &Result{
				Success:   true,
				Data:      rowsOf(entry.Payload),
				FromCache: true,
				Stale:     true,
			}, nil
		}
		return nil, err
	}

	c.monitor.RecordRequest(collection, "fetch", time.Since(start))

	if payload.Raw != "" {
		// Parse degradation: cache and return the opaque body
		c.store.Set(key, payload.Raw, c.cacheCfg.TTLFor(collection))
		return &Result{Success: true, Raw: payload.Raw}, nil
	}

	c.store.Set(key, payload.Rows, c.cacheCfg.TTLFor(collection))
	return &Result{Success: true, Data: payload.Rows}, nil
}

// Add writes one or more records. Sequences beyond the batch size split
// into sequential sub-batches, each its own remote write. Success
// invalidates every cached query variant of the collection.
func (c *Client) Add(ctx context.Context, collection string, records []Row) (*Result, error) {
	schema, err := c.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "no records to add").WithCollection(collection)
	}
	if err := c.requireEndpoint("add"); err != nil {
		return nil, err
	}

	var messages []string
	wroteAny := false
	batchSize := c.cfg.BatchSize

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		res, err := c.write(ctx, collection, schema.Actions.Add, map[string]interface{}{
			"records": records[start:end],
		})
		if err != nil {
			if wroteAny {
				c.invalidate(collection)
			}
			return nil, err
		}
		wroteAny = true
		if res.Message != "" {
			messages = append(messages, res.Message)
		}
	}

	c.invalidate(collection)
	return &Result{Success: true, Message: strings.Join(messages, "; ")}, nil
}

// Update modifies the record identified by id with the given fields and
// invalidates the collection's cache entries.
func (c *Client) Update(ctx context.Context, collection, id string, fields Row) (*Result, error) {
	schema, err := c.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}
	if err := c.requireEndpoint("update"); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"id": id}
	for k, v := range fields {
		payload[k] = v
	}

	res, err := c.write(ctx, collection, schema.Actions.Update, payload)
	if err != nil {
		return nil, err
	}

	c.invalidate(collection)
	return &Result{Success: true, Message: res.Message}, nil
}

// Delete removes the record identified by id and invalidates the
// collection's cache entries.
func (c *Client) Delete(ctx context.Context, collection, id string) (*Result, error) {
	schema, err := c.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}
	if err := c.requireEndpoint("delete"); err != nil {
		return nil, err
	}

	res, err := c.write(ctx, collection, schema.Actions.Delete, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}

	c.invalidate(collection)
	return &Result{Success: true, Message: res.Message}, nil
}

// TestConnection issues a lightweight no-cache fetch against one reference
// collection and measures round-trip time. Used as a health check and to
// decide between the remote provider and mock data.
func (c *Client) TestConnection(ctx context.Context) (*Result, error) {
	if c.wire == nil {
		return nil, errors.NewError(errors.ErrCodeMissingEndpoint, "provider endpoint not configured")
	}

	schema, err := c.registry.Lookup(c.referenceCollection())
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	if _, err := c.wire.get(callCtx, schema); err != nil {
		return nil, err
	}
	latency := time.Since(start)

	c.monitor.RecordRequest(schema.Name, "test_connection", latency)
	return &Result{Success: true, LatencyMs: latency.Milliseconds()}, nil
}

// DashboardStats is the aggregate the dashboard header shows, computed from
// cached products and orders.
type DashboardStats struct {
	TotalProducts int     `json:"totalProducts"`
	TotalOrders   int     `json:"totalOrders"`
	PendingOrders int     `json:"pendingOrders"`
	TotalRevenue  float64 `json:"totalRevenue"`
	RecentOrders  []Row   `json:"recentOrders"`
}

// Stats computes dashboard aggregates from the cache, accepting stale
// entries; an empty cache yields zero values.
func (c *Client) Stats() DashboardStats {
	var stats DashboardStats

	if entry, ok := c.store.GetStale(CacheKey("products", "")); ok {
		stats.TotalProducts = len(rowsOf(entry.Payload))
	}

	entry, ok := c.store.GetStale(CacheKey("orders", ""))
	if !ok {
		return stats
	}

	orders := rowsOf(entry.Payload)
	stats.TotalOrders = len(orders)
	for _, order := range orders {
		status, _ := order["order_status"].(string)
		if status == "pending" {
			stats.PendingOrders++
		}
		if status != "cancelled" {
			stats.TotalRevenue += toFloat(order["total_price"])
		}
	}

	recent := 5
	if len(orders) < recent {
		recent = len(orders)
	}
	stats.RecentOrders = orders[:recent]

	return stats
}

// Helper methods

func (c *Client) referenceCollection() string {
	if _, err := c.registry.Lookup("products"); err == nil {
		return "products"
	}
	return c.registry.Collections()[0]
}

func (c *Client) requireEndpoint(operation string) error {
	if c.wire == nil {
		return errors.NewError(errors.ErrCodeMissingEndpoint, "provider endpoint not configured").
			WithOperation(operation)
	}
	return nil
}

// fetchRemote routes the read through the request queue; retries happen
// inside the queue slot so concurrent pressure stays bounded during backoff.
func (c *Client) fetchRemote(ctx context.Context, schema Schema) (*fetchPayload, error) {
	value, err := c.queue.Do(ctx, func(taskCtx context.Context) (interface{}, error) {
		var payload *fetchPayload
		err := c.retryer.DoWithContext(taskCtx, func(rctx context.Context) error {
			callCtx, cancel := context.WithTimeout(rctx, c.cfg.RequestTimeout)
			defer cancel()

			p, err := c.wire.get(callCtx, schema)
			if err != nil {
				return err
			}
			payload = p
			return nil
		})
		return payload, err
	})
	if err != nil {
		return nil, err
	}
	return value.(*fetchPayload), nil
}

func (c *Client) write(ctx context.Context, collection, action string, payload map[string]interface{}) (*writeResult, error) {
	start := time.Now()

	value, err := c.queue.Do(ctx, func(taskCtx context.Context) (interface{}, error) {
		var res *writeResult
		err := c.retryer.DoWithContext(taskCtx, func(rctx context.Context) error {
			callCtx, cancel := context.WithTimeout(rctx, c.cfg.RequestTimeout)
			defer cancel()

			r, err := c.wire.post(callCtx, action, payload)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		return res, err
	})
	if err != nil {
		c.monitor.RecordError(collection, string(errors.CodeOf(err)))
		return nil, err
	}

	c.monitor.RecordRequest(collection, action, time.Since(start))
	return value.(*writeResult), nil
}

func (c *Client) invalidate(collection string) {
	removed := c.store.DeleteByPrefix(collection)
	if removed > 0 {
		c.logger.Debug("invalidated %d cache entries for %s", removed, collection)
	}
}

// rowsOf recovers rows from a cached payload, which may have round-tripped
// through a JSON snapshot.
func rowsOf(payload interface{}) []Row {
	switch v := payload.(type) {
	case []Row:
		return v
	case []interface{}:
		rows := make([]Row, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				rows = append(rows, Row(m))
			}
		}
		return rows
	default:
		return nil
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		var f float64
		_, _ = fmt.Sscanf(n, "%f", &f)
		return f
	default:
		return 0
	}
}
