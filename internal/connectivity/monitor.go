// Package connectivity tracks whether the remote store is reachable. Two
// triggers feed the status: pushed signals from the host environment and a
// periodic liveness probe. The probe is a correctness backstop for signals
// that were missed, not the primary mechanism.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"eduai-sync-service/internal/logger"
)

type Status int

const (
	Offline Status = iota
	Online
)

func (s Status) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Probe samples the native connectivity signal.
type Probe interface {
	Check(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Check(ctx context.Context) bool { return f(ctx) }

type Monitor struct {
	probe    Probe
	interval time.Duration

	mu     sync.Mutex
	status Status
	subs   []func(Status)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		probe:    probe,
		interval: interval,
		status:   Offline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnTransition registers a callback fired exactly once per detected
// transition. Repeated same-state signals never fire it. Subscriptions must
// be registered before Start.
func (m *Monitor) OnTransition(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Start samples the probe once to initialize the status (no transition is
// fired for the initial value) and begins the periodic re-poll.
func (m *Monitor) Start() {
	initial := Offline
	if m.probe.Check(m.ctx) {
		initial = Online
	}

	m.mu.Lock()
	m.status = initial
	m.mu.Unlock()

	logger.Log.Info("Connectivity monitor started",
		zap.String("status", initial.String()),
		zap.Duration("pollInterval", m.interval),
	)

	m.wg.Add(1)
	go m.poll()
}

func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	logger.Log.Info("Connectivity monitor stopped")
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Signal feeds a pushed connectivity event (the host's native online/offline
// notification) into the monitor.
func (m *Monitor) Signal(online bool) {
	m.setStatus(online)
}

func (m *Monitor) poll() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.setStatus(m.probe.Check(m.ctx))
		case <-m.ctx.Done():
			return
		}
	}
}

// setStatus is the single dedup point for both triggers: it records the new
// status and fires the transition callbacks only when the status changed.
func (m *Monitor) setStatus(online bool) {
	next := Offline
	if online {
		next = Online
	}

	m.mu.Lock()
	if next == m.status {
		m.mu.Unlock()
		return
	}
	m.status = next
	subs := m.subs
	m.mu.Unlock()

	logger.Log.Info("Connectivity transition", zap.String("status", next.String()))

	for _, fn := range subs {
		fn(next)
	}
}
