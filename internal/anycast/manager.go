package anycast

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkarrdns/pkarrdns/internal/metrics"
)

// checkInterval is how often the manager re-evaluates node health.
const checkInterval = 10 * time.Second

// Routing is the announce/withdraw surface the manager drives; satisfied
// by BGPSpeaker and by test fakes.
type Routing interface {
	Announce(ctx context.Context, vip string) error
	Withdraw(ctx context.Context, vip string) error
}

// Binder attaches the VIP locally; satisfied by VIPBinder.
type Binder interface {
	Bind(vip string) error
}

// HealthFunc reports whether this node should stay in the anycast set.
type HealthFunc func(ctx context.Context) error

// Manager announces the VIP while the node is healthy and withdraws it
// when it is not.
type Manager struct {
	routing Routing
	binder  Binder
	health  HealthFunc
	vip     string

	isAnnounced atomic.Bool
	vipBound    atomic.Bool
}

// NewManager builds a Manager for one VIP.
func NewManager(routing Routing, binder Binder, health HealthFunc, vip string) *Manager {
	return &Manager{routing: routing, binder: binder, health: health, vip: vip}
}

// Run performs an immediate health check, then re-checks on an interval
// until ctx is cancelled, withdrawing the route on shutdown.
func (m *Manager) Run(ctx context.Context) {
	logger.WithField("vip", m.vip).Info("starting anycast manager")
	m.TriggerCheck(ctx)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down, withdrawing route")
			if err := m.routing.Withdraw(context.Background(), m.vip); err != nil {
				logger.WithError(err).Error("withdraw on shutdown failed")
			}
			metrics.AnycastAnnounced.Set(0)
			return
		case <-ticker.C:
			m.TriggerCheck(ctx)
		}
	}
}

// TriggerCheck performs one health evaluation and converges the
// announcement state toward it.
func (m *Manager) TriggerCheck(ctx context.Context) {
	err := m.health(ctx)
	announced := m.isAnnounced.Load()
	switch {
	case err == nil && !announced:
		if aerr := m.Announce(ctx); aerr != nil {
			logger.WithError(aerr).Error("announce failed")
		}
	case err != nil && announced:
		logger.WithError(err).Warn("node unhealthy")
		if werr := m.Withdraw(ctx); werr != nil {
			logger.WithError(werr).Error("withdraw failed")
		}
	}
}

// Announce binds the VIP if needed and advertises the route. It also
// satisfies state.AnycastManager.
func (m *Manager) Announce(ctx context.Context) error {
	if !m.vipBound.Load() {
		if err := m.binder.Bind(m.vip); err != nil {
			return err
		}
		m.vipBound.Store(true)
	}
	if err := m.routing.Announce(ctx, m.vip); err != nil {
		return err
	}
	m.isAnnounced.Store(true)
	metrics.AnycastAnnounced.Set(1)
	return nil
}

// Withdraw pulls the route. The VIP stays bound for local reachability.
func (m *Manager) Withdraw(ctx context.Context) error {
	if err := m.routing.Withdraw(ctx, m.vip); err != nil {
		return err
	}
	m.isAnnounced.Store(false)
	metrics.AnycastAnnounced.Set(0)
	return nil
}
