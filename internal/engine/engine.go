// Package engine wires one client session's cart components together: the
// local store, the sync coordinator, the cross-sell sampler, the analytics
// buffer and the estimate/heartbeat schedulers.
package engine

import (
	"context"
	"sync"
	"time"

	"cart-sync-service/internal/analytics"
	"cart-sync-service/internal/cart"
	"cart-sync-service/internal/crosssell"
	"cart-sync-service/internal/models"
	"cart-sync-service/internal/schedule"
	cartsync "cart-sync-service/internal/sync"
	"cart-sync-service/internal/util"

	"go.uber.org/zap"
)

// Persistence is the durable local store for one client (browser
// localStorage analog).
type Persistence interface {
	SaveCartMirror(ctx context.Context, clientID string, snap models.CartSnapshot) error
	LoadCartMirror(ctx context.Context, clientID string) (*models.CartSnapshot, error)
	AppendOfflineEvents(ctx context.Context, clientID string, events []models.AnalyticsEvent) error
	DrainOfflineEvents(ctx context.Context, clientID string) ([]models.AnalyticsEvent, error)
}

// Estimator is the shipping/tax estimate collaborator.
type Estimator interface {
	Estimate(ctx context.Context, req models.EstimateRequest) (*models.Estimate, error)
	Heartbeat(ctx context.Context, userID string) error
}

// Options carries the timing knobs and collaborators for one session.
type Options struct {
	UserID   string
	ClientID string
	Currency string

	Docs        cartsync.DocumentStore
	Persistence Persistence
	Publisher   analytics.Publisher
	Lookup      crosssell.ProductLookup
	Estimator   Estimator
	Checkout    CheckoutBackend

	SyncDebounce     time.Duration
	EstimateDebounce time.Duration
	AnalyticsFlush   time.Duration
	HeartbeatEvery   time.Duration
	NoticeTTL        time.Duration
}

// Engine is one client session's cart engine.
type Engine struct {
	opts    Options
	idMu    sync.RWMutex
	userID  string
	store   *cart.Store
	coord   *cartsync.Coordinator
	sampler *crosssell.Sampler
	buffer  *analytics.Buffer
	logger  *zap.Logger

	estimator *estimateDebouncer
	heartbeat *schedule.Heartbeat
	notices   *noticeBoard

	cancel context.CancelFunc
}

// NewEngine assembles a session engine. The sync coordinator is attached
// only when an identity is present; guest sessions stay local until
// SignIn.
func NewEngine(opts Options) *Engine {
	if opts.NoticeTTL == 0 {
		opts.NoticeTTL = 5 * time.Second
	}

	e := &Engine{
		opts:    opts,
		userID:  opts.UserID,
		logger:  util.GetLogger(),
		notices: newNoticeBoard(opts.NoticeTTL),
	}

	e.buffer = analytics.NewBuffer(
		opts.Publisher,
		&offlineQueue{p: opts.Persistence, clientID: opts.ClientID},
		opts.UserID,
		opts.ClientID,
		opts.AnalyticsFlush,
	)
	e.store = cart.NewStore(
		opts.Currency,
		&mirrorPersister{p: opts.Persistence, clientID: opts.ClientID},
		e.buffer,
	)
	e.sampler = crosssell.NewSampler(opts.Lookup, time.Now().UnixNano())
	e.estimator = newEstimateDebouncer(e, opts.EstimateDebounce)
	e.heartbeat = schedule.NewHeartbeat(opts.HeartbeatEvery)

	return e
}

// Start restores the persisted mirror, registers the change subscribers
// and, for authenticated sessions, opens the sync path.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Restore(); err != nil {
		e.logger.Warn("Cart mirror restore failed, starting empty",
			zap.String("client_id", e.opts.ClientID),
			zap.Error(err))
	}

	ctx, e.cancel = context.WithCancel(ctx)

	e.store.Subscribe(e.estimator.onCartChange)
	e.store.Subscribe(e.onCartChange)

	if e.UserID() != "" {
		if err := e.attachSync(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels timers, detaches the sync path and attempts a final
// analytics flush.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.coord != nil {
		e.coord.Stop()
	}
	e.estimator.stop()
	e.heartbeat.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.buffer.Close(ctx); err != nil {
		e.logger.Warn("Final analytics flush failed", zap.Error(err))
	}
}

// SignIn handles the guest-to-authenticated transition: offline analytics
// hand-off, then the one-shot cart merge against the server snapshot.
func (e *Engine) SignIn(ctx context.Context, userID string) (string, error) {
	e.idMu.Lock()
	e.userID = userID
	e.idMu.Unlock()

	if err := e.buffer.SetIdentity(ctx, userID); err != nil {
		e.logger.Warn("Offline analytics hand-off failed", zap.Error(err))
	}

	if err := e.attachSync(ctx); err != nil {
		return "", err
	}
	if e.coord == nil {
		return cartsync.MergeOutcomeNoop, nil
	}

	outcome, err := e.coord.MergeOnSignIn(ctx)
	if err != nil {
		return outcome, err
	}
	e.buffer.Emit(models.EventCartMerged, map[string]string{"outcome": outcome})
	return outcome, nil
}

// UserID returns the session identity, empty for guests.
func (e *Engine) UserID() string {
	e.idMu.RLock()
	defer e.idMu.RUnlock()
	return e.userID
}

func (e *Engine) attachSync(ctx context.Context) error {
	if e.coord != nil || e.opts.Docs == nil {
		return nil
	}
	e.coord = cartsync.NewCoordinator(e.store, e.opts.Docs, e.UserID(), e.opts.ClientID, e.opts.SyncDebounce)
	e.store.Subscribe(e.coord.OnLocalChange)
	return e.coord.Start(ctx)
}

// onCartChange keeps the heartbeat aligned with cart emptiness.
func (e *Engine) onCartChange() {
	if e.store.IsEmpty() {
		e.heartbeat.Stop()
		return
	}
	if !e.heartbeat.Running() {
		e.heartbeat.Start(e.sendHeartbeat)
	}
}

func (e *Engine) sendHeartbeat() {
	userID := e.UserID()
	if userID == "" || e.opts.Estimator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.opts.Estimator.Heartbeat(ctx, userID); err != nil {
		// Best effort; a missed ping is simply skipped.
		return
	}
	util.HeartbeatsTotal.Inc()
	e.buffer.Emit(models.EventCartHeartbeat, nil)
}

// Cart exposes the local store for API handlers.
func (e *Engine) Cart() *cart.Store {
	return e.store
}

// Analytics exposes the session buffer.
func (e *Engine) Analytics() *analytics.Buffer {
	return e.buffer
}

// CrossSell samples recommendations for the current cart.
func (e *Engine) CrossSell(ctx context.Context) ([]models.CrossSellCandidate, error) {
	return e.sampler.Sample(ctx, e.store.Items())
}

// LastEstimate returns the most recent shipping/tax estimate, nil when
// none has arrived yet.
func (e *Engine) LastEstimate() *models.Estimate {
	return e.estimator.last()
}

// Notice returns the current pending checkout notice and highlight set.
func (e *Engine) Notice() (string, []string) {
	return e.notices.current()
}

// mirrorPersister adapts the durable local store to the cart persister.
type mirrorPersister struct {
	p        Persistence
	clientID string
}

func (m *mirrorPersister) Save(snap models.CartSnapshot) error {
	if m.p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.p.SaveCartMirror(ctx, m.clientID, snap)
}

func (m *mirrorPersister) Load() (*models.CartSnapshot, error) {
	if m.p == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.p.LoadCartMirror(ctx, m.clientID)
}

// offlineQueue adapts the durable local store to the analytics queue.
type offlineQueue struct {
	p        Persistence
	clientID string
}

func (q *offlineQueue) Append(ctx context.Context, events []models.AnalyticsEvent) error {
	if q.p == nil {
		return nil
	}
	return q.p.AppendOfflineEvents(ctx, q.clientID, events)
}

func (q *offlineQueue) Drain(ctx context.Context) ([]models.AnalyticsEvent, error) {
	if q.p == nil {
		return nil, nil
	}
	return q.p.DrainOfflineEvents(ctx, q.clientID)
}
