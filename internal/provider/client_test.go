package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sheetsync/sheetsync/internal/cache"
	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/metrics"
	"github.com/sheetsync/sheetsync/internal/queue"
	"github.com/sheetsync/sheetsync/pkg/errors"
)

// newTestClient builds a client against endpoint with fast retry delays and
// no snapshot persistence. mutate may adjust the configuration first.
func newTestClient(t *testing.T, endpoint string, mutate func(*config.Configuration)) (*Client, *cache.Store) {
	t.Helper()

	cfg := config.NewDefault()
	cfg.Provider.Endpoint = endpoint
	cfg.Provider.RetryBaseDelay = time.Millisecond
	cfg.Provider.RequestTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	store := cache.NewStore(cache.Config{MaxEntries: cfg.Cache.MaxEntries, SweepInterval: time.Hour}, nil, nil)
	t.Cleanup(func() { _ = store.Close() })

	q := queue.New(queue.Config{MaxConcurrent: cfg.Queue.MaxConcurrent})
	monitor := metrics.NewCollector(nil, nil)

	client, err := NewClient(cfg, store, q, monitor, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, store
}

func productsHandler(calls *int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":1,"product_name":"Laptop"},{"id":2,"product_name":"Phone"}]}`))
	}
}

func TestFetchCacheFirst(t *testing.T) {
	var calls int64
	server := httptest.NewServer(productsHandler(&calls))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)
	ctx := context.Background()

	first, err := client.Fetch(ctx, "products", DefaultFetchOptions())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if first.FromCache || len(first.Data) != 2 {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := client.Fetch(ctx, "products", DefaultFetchOptions())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !second.FromCache {
		t.Error("second fetch must come from cache")
	}
	if len(second.Data) != 2 {
		t.Errorf("cached data lost: %+v", second)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("expected exactly 1 remote call, got %d", calls)
	}
}

func TestFetchForceRefresh(t *testing.T) {
	var calls int64
	server := httptest.NewServer(productsHandler(&calls))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)
	ctx := context.Background()

	if _, err := client.Fetch(ctx, "products", DefaultFetchOptions()); err != nil {
		t.Fatal(err)
	}
	res, err := client.Fetch(ctx, "products", FetchOptions{UseCache: true, ForceRefresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("forced refresh must not serve from cache")
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Errorf("expected 2 remote calls, got %d", calls)
	}
}

func TestFetchQueryRangeSeparateKeys(t *testing.T) {
	var calls int64
	server := httptest.NewServer(productsHandler(&calls))
	defer server.Close()

	client, store := newTestClient(t, server.URL, nil)
	ctx := context.Background()

	if _, err := client.Fetch(ctx, "products", DefaultFetchOptions()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Fetch(ctx, "products", FetchOptions{UseCache: true, QueryRange: "recent"}); err != nil {
		t.Fatal(err)
	}

	if atomic.LoadInt64(&calls) != 2 {
		t.Errorf("distinct query ranges must fetch separately, got %d calls", calls)
	}
	if _, ok := store.Get("products_all"); !ok {
		t.Error("products_all not cached")
	}
	if _, ok := store.Get("products_recent"); !ok {
		t.Error("products_recent not cached")
	}
}

func TestFetchStaleFallback(t *testing.T) {
	var fail atomic.Bool
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"product_name":"Laptop"}]`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, func(cfg *config.Configuration) {
		cfg.Cache.DefaultTTL = 20 * time.Millisecond
	})
	ctx := context.Background()

	if _, err := client.Fetch(ctx, "products", DefaultFetchOptions()); err != nil {
		t.Fatal(err)
	}

	// Let the entry expire, then make the remote fail
	time.Sleep(40 * time.Millisecond)
	fail.Store(true)
	before := atomic.LoadInt64(&calls)

	res, err := client.Fetch(ctx, "products", DefaultFetchOptions())
	if err != nil {
		t.Fatalf("expected stale fallback, got error %v", err)
	}
	if !res.Stale || !res.FromCache {
		t.Errorf("result not marked stale: %+v", res)
	}
	if len(res.Data) != 1 {
		t.Errorf("stale data lost: %+v", res)
	}
	if got := atomic.LoadInt64(&calls) - before; got != 3 {
		t.Errorf("expected 3 retry attempts, got %d", got)
	}
}

func TestFetchNoStaleReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)

	_, err := client.Fetch(context.Background(), "products", DefaultFetchOptions())
	if errors.CodeOf(err) != errors.ErrCodeRetryExhausted {
		t.Fatalf("expected RETRY_EXHAUSTED, got %v", err)
	}
}

func TestFetchRawPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Service temporarily moved"))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)

	res, err := client.Fetch(context.Background(), "products", DefaultFetchOptions())
	if err != nil {
		t.Fatalf("non-JSON body must degrade, not fail: %v", err)
	}
	if res.Raw != "Service temporarily moved" {
		t.Errorf("raw payload = %q", res.Raw)
	}
	if res.Data != nil {
		t.Errorf("unexpected rows %v", res.Data)
	}
}

func TestFetchUnknownCollection(t *testing.T) {
	client, _ := newTestClient(t, "", nil)

	_, err := client.Fetch(context.Background(), "invoices", DefaultFetchOptions())
	if errors.CodeOf(err) != errors.ErrCodeUnknownCollection {
		t.Fatalf("expected CONFIG_UNKNOWN_COLLECTION, got %v", err)
	}
}

func TestFetchMockMode(t *testing.T) {
	client, store := newTestClient(t, "", nil)

	res, err := client.Fetch(context.Background(), "products", DefaultFetchOptions())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Mock {
		t.Error("result not marked mock")
	}
	if len(res.Data) == 0 {
		t.Error("mock dataset empty")
	}
	if _, ok := store.Get("products_all"); !ok {
		t.Error("mock result not cached")
	}

	// Collections without sample data serve an empty list, not an error
	res, err = client.Fetch(context.Background(), "promotions", DefaultFetchOptions())
	if err != nil {
		t.Fatalf("Fetch promotions: %v", err)
	}
	if len(res.Data) != 0 {
		t.Errorf("expected empty promotions, got %d rows", len(res.Data))
	}
}

func TestSetMockModeRequiresEndpoint(t *testing.T) {
	client, _ := newTestClient(t, "", nil)

	client.SetMockMode(false)
	if !client.MockMode() {
		t.Error("mock mode must stay on with no endpoint configured")
	}
}

func TestAddBatching(t *testing.T) {
	var batches [][]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		records, _ := body["records"].([]interface{})
		batches = append(batches, records)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client, store := newTestClient(t, server.URL, nil)

	// Pre-seed cache entries that the write must invalidate
	store.Set("orders_all", []Row{}, time.Hour)
	store.Set("orders_recent", []Row{}, time.Hour)
	store.Set("products_all", []Row{}, time.Hour)

	records := make([]Row, 120)
	for i := range records {
		records[i] = Row{"order_id": i}
	}

	res, err := client.Add(context.Background(), "orders", records)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !res.Success {
		t.Errorf("unexpected result %+v", res)
	}

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches for 120 records, got %d", len(batches))
	}
	for i, want := range []int{50, 50, 20} {
		if len(batches[i]) != want {
			t.Errorf("batch %d has %d records, want %d", i, len(batches[i]), want)
		}
	}

	if _, ok := store.GetStale("orders_all"); ok {
		t.Error("orders_all not invalidated")
	}
	if _, ok := store.GetStale("orders_recent"); ok {
		t.Error("orders_recent not invalidated")
	}
	if _, ok := store.GetStale("products_all"); !ok {
		t.Error("unrelated collection must survive invalidation")
	}
}

func TestAddPartialFailureStillInvalidates(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, store := newTestClient(t, server.URL, nil)
	store.Set("orders_all", []Row{}, time.Hour)

	records := make([]Row, 60)
	for i := range records {
		records[i] = Row{"order_id": i}
	}

	_, err := client.Add(context.Background(), "orders", records)
	if err == nil {
		t.Fatal("expected error from second batch")
	}
	if _, ok := store.GetStale("orders_all"); ok {
		t.Error("cache must be invalidated after a partial write")
	}
}

func TestAddEmptyRecords(t *testing.T) {
	client, _ := newTestClient(t, "http://127.0.0.1:1", nil)

	_, err := client.Add(context.Background(), "orders", nil)
	if errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestUpdateSendsIDAndFields(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"message":"updated"}`))
	}))
	defer server.Close()

	client, store := newTestClient(t, server.URL, nil)
	store.Set("orders_all", []Row{}, time.Hour)

	res, err := client.Update(context.Background(), "orders", "ORD001", Row{"order_status": "shipped"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Message != "updated" {
		t.Errorf("message = %q", res.Message)
	}
	if gotBody["action"] != "updateOrders" || gotBody["id"] != "ORD001" || gotBody["order_status"] != "shipped" {
		t.Errorf("unexpected body %v", gotBody)
	}
	if _, ok := store.GetStale("orders_all"); ok {
		t.Error("cache not invalidated after update")
	}
}

func TestDeleteSendsID(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)

	if _, err := client.Delete(context.Background(), "products", "PRD001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotBody["action"] != "deleteProducts" || gotBody["id"] != "PRD001" {
		t.Errorf("unexpected body %v", gotBody)
	}
}

func TestWritesRequireEndpoint(t *testing.T) {
	client, _ := newTestClient(t, "", nil)
	ctx := context.Background()

	if _, err := client.Add(ctx, "orders", []Row{{"order_id": 1}}); errors.CodeOf(err) != errors.ErrCodeMissingEndpoint {
		t.Errorf("Add without endpoint: %v", err)
	}
	if _, err := client.Update(ctx, "orders", "1", Row{}); errors.CodeOf(err) != errors.ErrCodeMissingEndpoint {
		t.Errorf("Update without endpoint: %v", err)
	}
	if _, err := client.Delete(ctx, "orders", "1"); errors.CodeOf(err) != errors.ErrCodeMissingEndpoint {
		t.Errorf("Delete without endpoint: %v", err)
	}
}

func TestClientTestConnection(t *testing.T) {
	server := httptest.NewServer(productsHandler(new(int64)))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, nil)

	res, err := client.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if !res.Success || res.LatencyMs < 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestClientTestConnectionNoEndpoint(t *testing.T) {
	client, _ := newTestClient(t, "", nil)

	_, err := client.TestConnection(context.Background())
	if errors.CodeOf(err) != errors.ErrCodeMissingEndpoint {
		t.Fatalf("expected CONFIG_MISSING_ENDPOINT, got %v", err)
	}
}

func TestClientStats(t *testing.T) {
	client, store := newTestClient(t, "", nil)

	store.Set(CacheKey("products", ""), mockRows("products"), time.Hour)
	store.Set(CacheKey("orders", ""), mockRows("orders"), time.Hour)

	stats := client.Stats()
	if stats.TotalProducts != 8 {
		t.Errorf("TotalProducts = %d", stats.TotalProducts)
	}
	if stats.TotalOrders != 4 {
		t.Errorf("TotalOrders = %d", stats.TotalOrders)
	}
	if stats.PendingOrders != 1 {
		t.Errorf("PendingOrders = %d", stats.PendingOrders)
	}
	// All four mock orders count toward revenue; none is cancelled
	if want := 45000.0 + 25000.0 + 5000.0 + 1300.0; stats.TotalRevenue != want {
		t.Errorf("TotalRevenue = %v, want %v", stats.TotalRevenue, want)
	}
	if len(stats.RecentOrders) != 4 {
		t.Errorf("RecentOrders = %d", len(stats.RecentOrders))
	}
}

func TestClientStatsEmptyCache(t *testing.T) {
	client, _ := newTestClient(t, "", nil)

	stats := client.Stats()
	if stats.TotalProducts != 0 || stats.TotalOrders != 0 || stats.TotalRevenue != 0 {
		t.Errorf("empty cache must yield zero stats, got %+v", stats)
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey("products", ""); got != "products_all" {
		t.Errorf(`CacheKey("products", "") = %q`, got)
	}
	if got := CacheKey("orders", "last30"); got != "orders_last30" {
		t.Errorf(`CacheKey("orders", "last30") = %q`, got)
	}
}
