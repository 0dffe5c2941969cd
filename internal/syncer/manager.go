// Package syncer implements the background sync manager: periodic full
// refresh of the tracked collections, change notifications, and
// online/offline driven start and stop.
package syncer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sheetsync/sheetsync/internal/cache"
	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/provider"
	"github.com/sheetsync/sheetsync/pkg/errors"
	"github.com/sheetsync/sheetsync/pkg/utils"
)

// State represents the sync manager state machine
type State int

const (
	// StateIdle indicates background sync is not running
	StateIdle State = iota

	// StateChecking indicates a connectivity probe is in progress
	StateChecking

	// StateOnline indicates background sync is active
	StateOnline

	// StateOffline indicates the provider is unreachable; the timer is
	// stopped until a connectivity-restored signal
	StateOffline

	// StateSyncing indicates a sync pass is in progress
	StateSyncing
)

// String returns the string representation of the sync state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Status is the externally visible sync state.
type Status struct {
	State             string               `json:"state"`
	IsOnline          bool                 `json:"isOnline"`
	SyncInProgress    bool                 `json:"syncInProgress"`
	BackgroundActive  bool                 `json:"backgroundSyncActive"`
	LastSyncTime      map[string]time.Time `json:"lastSyncTime"`
	LastSyncErrors    map[string]string    `json:"lastSyncErrors,omitempty"`
	ConnectionLatency int64                `json:"connectionLatencyMs,omitempty"`
}

// Event is the change notification emitted once per successfully synced
// collection.
type Event struct {
	Collection string         `json:"collection"`
	Data       []provider.Row `json:"data"`
}

// Manager orchestrates periodic refresh across the tracked collections. One
// instance per running client.
type Manager struct {
	client      *provider.Client
	store       *cache.Store
	logger      *utils.Logger
	interval    time.Duration
	collections []string

	mu             sync.RWMutex
	state          State
	syncInProgress bool
	lastErrors     map[string]string
	latencyMs      int64
	stopCh         chan struct{}
	wg             sync.WaitGroup

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// NewManager creates a sync manager in the Idle state.
func NewManager(cfg *config.Configuration, client *provider.Client, store *cache.Store, logger *utils.Logger) *Manager {
	if logger == nil {
		logger = utils.NewLogger(utils.INFO, nil)
	}
	return &Manager{
		client:      client,
		store:       store,
		logger:      logger.WithComponent("syncer"),
		interval:    cfg.Sync.Interval,
		collections: append([]string(nil), cfg.Sync.Collections...),
		state:       StateIdle,
		lastErrors:  make(map[string]string),
		subscribers: make(map[int]chan Event),
	}
}

// StartAutoSync probes connectivity and, when online, starts the periodic
// background sync. When the probe fails the manager lands Offline with no
// timer and the client switches to mock data.
func (m *Manager) StartAutoSync(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle && m.state != StateOffline {
		m.mu.Unlock()
		return errors.NewError(errors.ErrCodeAlreadyStarted, "auto sync already active")
	}
	m.state = StateChecking
	m.mu.Unlock()

	return m.checkAvailability(ctx)
}

// ConnectivityRestored signals that the network came back. Valid only from
// Offline; it re-runs the availability check.
func (m *Manager) ConnectivityRestored(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateOffline {
		m.mu.Unlock()
		return nil
	}
	m.state = StateChecking
	m.mu.Unlock()

	return m.checkAvailability(ctx)
}

// StopAutoSync is valid from any state and always lands Idle with the timer
// cleared.
func (m *Manager) StopAutoSync() {
	m.mu.Lock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.state = StateIdle
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("auto sync stopped")
}

// SyncNow runs one sync pass immediately. A pass already in progress is not
// queued; the call is skipped.
func (m *Manager) SyncNow(ctx context.Context) {
	m.syncPass(ctx)
}

// Status returns the externally visible sync state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:             m.state.String(),
		IsOnline:          m.state == StateOnline || m.state == StateSyncing,
		SyncInProgress:    m.syncInProgress,
		BackgroundActive:  m.stopCh != nil,
		LastSyncTime:      m.store.LastSync(),
		ConnectionLatency: m.latencyMs,
	}
	if len(m.lastErrors) > 0 {
		status.LastSyncErrors = make(map[string]string, len(m.lastErrors))
		for k, v := range m.lastErrors {
			status.LastSyncErrors[k] = v
		}
	}
	return status
}

// Subscribe registers a change notification channel. The returned function
// unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Event, 16)
	m.subscribers[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(sub)
		}
	}
}

// checkAvailability probes the provider and transitions to Online or
// Offline.
func (m *Manager) checkAvailability(ctx context.Context) error {
	res, err := m.client.TestConnection(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateOffline
		m.latencyMs = 0
		m.mu.Unlock()

		// Fully offline: serve built-in data instead of surfacing errors
		m.client.SetMockMode(true)
		m.logger.Warn("provider unavailable, operating offline: %v", err)
		return nil
	}

	m.client.SetMockMode(false)

	m.mu.Lock()
	m.state = StateOnline
	m.latencyMs = res.LatencyMs
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.mu.Unlock()

	m.logger.Info("provider reachable (%dms), starting background sync every %s",
		res.LatencyMs, m.interval)

	m.wg.Add(1)
	go m.loop(stopCh)

	// Initial full refresh so the UI has data before the first tick
	m.syncPass(ctx)

	return nil
}

func (m *Manager) loop(stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.syncPass(context.Background())
		}
	}
}

// syncPass refreshes every tracked collection in parallel. Overlapping
// passes are skipped, not queued; one collection's failure never aborts the
// others.
func (m *Manager) syncPass(ctx context.Context) {
	m.mu.Lock()
	if m.syncInProgress {
		m.mu.Unlock()
		m.logger.Debug("sync tick skipped, pass still in progress")
		return
	}
	m.syncInProgress = true
	prevState := m.state
	if prevState == StateOnline {
		m.state = StateSyncing
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.syncInProgress = false
		if m.state == StateSyncing {
			m.state = StateOnline
		}
		m.mu.Unlock()
	}()

	passErrors := make(map[string]string)
	var errMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, collection := range m.collections {
		collection := collection
		g.Go(func() error {
			res, err := m.client.Fetch(gctx, collection, provider.FetchOptions{
				UseCache:     true,
				ForceRefresh: true,
			})
			if err != nil {
				// Reported independently; siblings keep going
				errMu.Lock()
				passErrors[collection] = err.Error()
				errMu.Unlock()
				m.logger.Warn("sync of %s failed: %v", collection, err)
				return nil
			}
			if res.Stale {
				// The refresh failed; the stale cache fallback is not a
				// sync, so the sync clock must not advance
				errMu.Lock()
				passErrors[collection] = "refresh failed, serving stale cache"
				errMu.Unlock()
				m.logger.Warn("sync of %s fell back to stale cache", collection)
				return nil
			}

			m.store.SetLastSync(collection, time.Now())
			m.publish(Event{Collection: collection, Data: res.Data})
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	m.lastErrors = passErrors
	m.mu.Unlock()

	if len(passErrors) > 0 {
		m.logger.Warn("sync pass finished with %d/%d collections failed",
			len(passErrors), len(m.collections))
	} else {
		m.logger.Debug("sync pass finished, %d collections refreshed", len(m.collections))
	}
}

// publish sends the event to every subscriber without blocking; slow
// subscribers drop events rather than stalling the sync pass.
func (m *Manager) publish(event Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			m.logger.Warn("dropping %s change notification, subscriber is slow", event.Collection)
		}
	}
}
