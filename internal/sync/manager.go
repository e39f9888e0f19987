package sync

import (
	"context"
	gosync "sync"

	"go.uber.org/zap"

	"eduai-sync-service/internal/config"
	"eduai-sync-service/internal/connectivity"
	"eduai-sync-service/internal/logger"
	"eduai-sync-service/internal/notify"
	"eduai-sync-service/internal/queue"
	"eduai-sync-service/internal/remote"
	"eduai-sync-service/internal/store"
)

// Manager is the sync runtime: it owns the local store, the mutation queue,
// the connectivity monitor and the engine, wired together with one instance
// per process. The hosting layer holds a Manager for the process lifetime.
type Manager struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	queue     *queue.Queue
	remote    remote.Client
	monitor   *connectivity.Monitor
	engine    *Engine
	refresher *Refresher
	notifier  notify.Notifier

	mu      gosync.Mutex
	started bool
}

func NewManager(cfg *config.Config, rc remote.Client, notifier notify.Notifier) (*Manager, error) {
	st, err := store.NewSQLiteStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	q := queue.New(st.Handle())

	probe := connectivity.ProbeFunc(func(ctx context.Context) bool {
		return rc.Health(ctx) == nil
	})
	monitor := connectivity.NewMonitor(probe, cfg.Sync.GetPollInterval())

	engine, err := NewEngine(st, q, rc, monitor, notifier, cfg.Sync.MaxAttempts)
	if err != nil {
		st.Close()
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		store:     st,
		queue:     q,
		remote:    rc,
		monitor:   monitor,
		engine:    engine,
		refresher: NewRefresher(rc, st),
		notifier:  notifier,
	}

	monitor.OnTransition(m.handleTransition)

	return m, nil
}

// Start brings the connectivity monitor up and, when the service starts
// online with work already queued, kicks off an initial drain.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	logger.Log.Info("Starting sync manager")
	m.monitor.Start()

	if m.monitor.Status() == connectivity.Online {
		go m.engine.Drain(context.Background())
	}
}

func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	logger.Log.Info("Stopping sync manager")
	m.monitor.Stop()
}

func (m *Manager) Close() {
	m.Stop()
	if err := m.store.Close(); err != nil {
		logger.Log.Error("Failed to close local store", zap.Error(err))
	}
}

// handleTransition reacts to connectivity changes: regaining connectivity
// triggers exactly one drain attempt (the engine's own lock prevents
// overlap); going offline is informational only.
func (m *Manager) handleTransition(status connectivity.Status) {
	if status == connectivity.Online {
		m.notifier.Notify(notify.Success, "Back online! Syncing data...")
		go m.engine.Drain(context.Background())
		return
	}
	m.notifier.Notify(notify.Info, "You're offline. Changes will be saved locally and synced when you're back online.")
}

func (m *Manager) Engine() *Engine                { return m.engine }
func (m *Manager) Queue() *queue.Queue            { return m.queue }
func (m *Manager) Store() store.Store             { return m.store }
func (m *Manager) Monitor() *connectivity.Monitor { return m.monitor }
func (m *Manager) Refresher() *Refresher          { return m.refresher }

// Status is the control-plane snapshot of the sync runtime.
type Status struct {
	Online  bool `json:"online"`
	Syncing bool `json:"syncing"`
	Pending int  `json:"pending"`
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	pending, err := m.queue.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Online:  m.monitor.Status() == connectivity.Online,
		Syncing: m.engine.Syncing(),
		Pending: pending,
	}, nil
}
