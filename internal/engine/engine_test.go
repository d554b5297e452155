package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/service"
	cartsync "cart-sync-service/internal/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu           sync.Mutex
	validateErr  error
	result       models.ValidationResult
	connected    bool
	orders       []*models.Order
	sessionCalls int
}

func (f *fakeBackend) Validate(ctx context.Context, userID string, items []models.LineItem, discounts []models.DiscountCode) (*models.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	result := f.result
	return &result, nil
}

func (f *fakeBackend) IsProviderConnected(sellerUserID string) bool {
	return f.connected
}

func (f *fakeBackend) CreateOrder(ctx context.Context, userID, sellerUserID, siteID, currency, idempotencyKey string, items []models.LineItem, total int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := &models.Order{ID: int64(len(f.orders) + 1), UserID: userID, TotalAmount: total, Currency: currency}
	f.orders = append(f.orders, order)
	return order, nil
}

func (f *fakeBackend) CreateCheckoutSession(ctx context.Context, order *models.Order) (*service.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls++
	return &service.CheckoutSession{SessionID: "cs_test", RedirectURL: "https://example.test/cs_test"}, nil
}

type fakeEstimator struct {
	mu         sync.Mutex
	calls      int
	heartbeats int
}

func (f *fakeEstimator) Estimate(ctx context.Context, req models.EstimateRequest) (*models.Estimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &models.Estimate{Shipping: 500, Tax: req.Subtotal / 10, UpdatedAt: time.Now()}, nil
}

func (f *fakeEstimator) Heartbeat(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeEstimator) estimateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEstimator) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats
}

func testEngine(t *testing.T, backend *fakeBackend, estimator *fakeEstimator) *Engine {
	t.Helper()
	e := NewEngine(Options{
		UserID:           "user-1",
		ClientID:         "client-A",
		Currency:         "USD",
		Estimator:        estimator,
		Checkout:         backend,
		SyncDebounce:     10 * time.Millisecond,
		EstimateDebounce: 10 * time.Millisecond,
		AnalyticsFlush:   time.Hour,
		HeartbeatEvery:   15 * time.Millisecond,
		NoticeTTL:        50 * time.Millisecond,
	})
	// No Docs: the sync path stays detached, everything else runs.
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	return e
}

func addProduct(e *Engine, id string, price int64, qty int) {
	e.Cart().AddItem(models.Product{ID: id, Title: id, Price: price, Category: "general", WeightG: 100}, "", qty)
}

func TestCheckoutCompletes(t *testing.T) {
	backend := &fakeBackend{connected: true, result: models.ValidationResult{OK: true}}
	e := testEngine(t, backend, &fakeEstimator{})
	addProduct(e, "p1", 1000, 2)

	res, err := e.Checkout(context.Background(), CheckoutRequest{SellerUserID: "seller-1", SiteID: "site-1"})
	require.NoError(t, err)

	assert.Equal(t, CheckoutCompleted, res.Status)
	assert.Equal(t, int64(2000), res.Total)
	require.NotNil(t, res.Session)
	assert.Equal(t, 1, backend.sessionCalls)
}

func TestCheckoutBlocksOnValidationFailure(t *testing.T) {
	backend := &fakeBackend{connected: true, validateErr: errors.New("service down")}
	e := testEngine(t, backend, &fakeEstimator{})
	addProduct(e, "p1", 1000, 1)

	_, err := e.Checkout(context.Background(), CheckoutRequest{SellerUserID: "seller-1", SiteID: "site-1"})
	assert.Error(t, err)
	assert.Empty(t, backend.orders)
}

func TestCheckoutBlocksOnDisconnectedProvider(t *testing.T) {
	backend := &fakeBackend{connected: false, result: models.ValidationResult{OK: true}}
	e := testEngine(t, backend, &fakeEstimator{})
	addProduct(e, "p1", 1000, 1)

	res, err := e.Checkout(context.Background(), CheckoutRequest{SellerUserID: "seller-1", SiteID: "site-1"})
	require.NoError(t, err)

	assert.Equal(t, CheckoutBlockedProvider, res.Status)
	assert.Empty(t, backend.orders)
}

func TestCheckoutDriftAdoptsValidatedState(t *testing.T) {
	validated := []models.LineItem{{LineID: "L1", ProductID: "p1", Quantity: 1, UnitPrice: 900, Title: "p1"}}
	backend := &fakeBackend{
		connected: true,
		result: models.ValidationResult{
			OK:          true,
			Changed:     true,
			Items:       validated,
			Adjustments: []string{"p1|"},
		},
	}
	e := testEngine(t, backend, &fakeEstimator{})
	addProduct(e, "p1", 1000, 3)

	res, err := e.Checkout(context.Background(), CheckoutRequest{SellerUserID: "seller-1", SiteID: "site-1"})
	require.NoError(t, err)

	// Drift never proceeds to an order; validated state replaces local.
	assert.Equal(t, CheckoutDrift, res.Status)
	assert.Contains(t, res.HighlightedKeys, "p1|")
	assert.Empty(t, backend.orders)

	items := e.Cart().Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, int64(900), items[0].UnitPrice)

	notice, highlights := e.Notice()
	assert.NotEmpty(t, notice)
	assert.Contains(t, highlights, "p1|")

	// The highlight set is transient and auto-clears.
	time.Sleep(100 * time.Millisecond)
	notice, highlights = e.Notice()
	assert.Empty(t, notice)
	assert.Empty(t, highlights)
}

func TestHeartbeatFollowsCartEmptiness(t *testing.T) {
	estimator := &fakeEstimator{}
	e := testEngine(t, &fakeBackend{}, estimator)

	addProduct(e, "p1", 1000, 1)
	time.Sleep(60 * time.Millisecond)
	assert.GreaterOrEqual(t, estimator.heartbeatCount(), 1)

	e.Cart().ClearCart()
	before := estimator.heartbeatCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, estimator.heartbeatCount())
}

func TestEstimateDebounced(t *testing.T) {
	estimator := &fakeEstimator{}
	e := testEngine(t, &fakeBackend{}, estimator)

	addProduct(e, "p1", 1000, 1)
	addProduct(e, "p1", 1000, 1)
	addProduct(e, "p2", 500, 1)
	time.Sleep(80 * time.Millisecond)

	// A burst of changes produces one estimate request.
	assert.Equal(t, 1, estimator.estimateCalls())
	require.NotNil(t, e.LastEstimate())
	assert.Equal(t, int64(500), e.LastEstimate().Shipping)

	// A quantity change that moves the subtotal schedules a fresh one.
	line := e.Cart().Items()[0]
	require.NoError(t, e.Cart().UpdateQuantity(line.LineID, 5))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 2, estimator.estimateCalls())
}

func TestStartWithoutDocumentStoreStaysDetached(t *testing.T) {
	// An authenticated session without a document store runs local-only:
	// Start must not touch the sync path.
	e := testEngine(t, &fakeBackend{connected: true, result: models.ValidationResult{OK: true}}, &fakeEstimator{})
	assert.Nil(t, e.coord)

	addProduct(e, "p1", 1000, 1)
	assert.Len(t, e.Cart().Items(), 1)
}

func TestSignInWithoutDocumentStoreIsNoop(t *testing.T) {
	e := testEngine(t, &fakeBackend{}, &fakeEstimator{})

	outcome, err := e.SignIn(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, cartsync.MergeOutcomeNoop, outcome)
	assert.Equal(t, "user-2", e.UserID())
	assert.Nil(t, e.coord)
}

func TestSignInRacesHeartbeat(t *testing.T) {
	estimator := &fakeEstimator{}
	e := testEngine(t, &fakeBackend{}, estimator)

	// Keep the heartbeat goroutine reading the identity while sign-ins
	// rewrite it.
	addProduct(e, "p1", 1000, 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := e.SignIn(context.Background(), "user-"+string(rune('a'+n)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	time.Sleep(60 * time.Millisecond)
	assert.NotEmpty(t, e.UserID())
	assert.GreaterOrEqual(t, estimator.heartbeatCount(), 1)
}
