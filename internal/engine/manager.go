package engine

import (
	"context"
	"sync"
	"time"

	"cart-sync-service/config"
	"cart-sync-service/internal/analytics"
	"cart-sync-service/internal/crosssell"
	cartsync "cart-sync-service/internal/sync"
	"cart-sync-service/internal/util"

	"go.uber.org/zap"
)

// Deps are the shared collaborators every session engine is wired with.
type Deps struct {
	Docs        cartsync.DocumentStore
	Persistence Persistence
	Publisher   analytics.Publisher
	Lookup      crosssell.ProductLookup
	Estimator   Estimator
	Checkout    CheckoutBackend
}

// Manager owns the live session engines, one per client id.
type Manager struct {
	cfg    config.CartConfig
	deps   Deps
	logger *zap.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates a session manager.
func NewManager(cfg config.CartConfig, deps Deps) *Manager {
	return &Manager{
		cfg:     cfg,
		deps:    deps,
		logger:  util.GetLogger(),
		engines: make(map[string]*Engine),
	}
}

// Session returns the engine for a client, creating and starting one on
// first use. userID may be empty for guest sessions.
func (m *Manager) Session(ctx context.Context, clientID, userID string) (*Engine, error) {
	m.mu.Lock()
	if e, ok := m.engines[clientID]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	e := NewEngine(Options{
		UserID:           userID,
		ClientID:         clientID,
		Currency:         m.cfg.Currency,
		Docs:             m.deps.Docs,
		Persistence:      m.deps.Persistence,
		Publisher:        m.deps.Publisher,
		Lookup:           m.deps.Lookup,
		Estimator:        m.deps.Estimator,
		Checkout:         m.deps.Checkout,
		SyncDebounce:     time.Duration(m.cfg.SyncDebounceMs) * time.Millisecond,
		EstimateDebounce: time.Duration(m.cfg.EstimateDebounceMs) * time.Millisecond,
		AnalyticsFlush:   time.Duration(m.cfg.AnalyticsFlushMs) * time.Millisecond,
		HeartbeatEvery:   time.Duration(m.cfg.HeartbeatIntervalSeconds) * time.Second,
	})
	if err := e.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.engines[clientID]; ok {
		m.mu.Unlock()
		e.Stop()
		return existing, nil
	}
	m.engines[clientID] = e
	m.mu.Unlock()

	m.logger.Info("Session engine started",
		zap.String("client_id", clientID),
		zap.String("user_id", userID))
	return e, nil
}

// StopAll stops every live engine. Used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.engines = make(map[string]*Engine)
	m.mu.Unlock()

	for _, e := range engines {
		e.Stop()
	}
}
