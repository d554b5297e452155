package sync

import (
	"context"
	"testing"
	"time"

	"cart-sync-service/internal/cart"
	"cart-sync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(productID, variantID string, qty int, price int64) models.LineItem {
	return models.LineItem{
		LineID:    "L-" + productID + variantID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  qty,
		UnitPrice: price,
		Title:     "Product " + productID,
	}
}

func TestResolveMergeBothEmpty(t *testing.T) {
	merged, outcome := ResolveMerge(models.CartSnapshot{}, models.CartSnapshot{})
	assert.Equal(t, MergeOutcomeNoop, outcome)
	assert.Empty(t, merged.Items)
}

func TestResolveMergeReloadGuard(t *testing.T) {
	local := models.CartSnapshot{Items: []models.LineItem{line("p1", "", 2, 1000), line("p2", "v1", 1, 500)}}
	remote := models.CartSnapshot{
		Version: 9,
		Items:   []models.LineItem{line("p2", "v1", 1, 500), line("p1", "", 2, 1000)},
	}

	merged, outcome := ResolveMerge(local, remote)

	// Identical key set and quantities means a page-reload echo: adopt the
	// remote as-is instead of doubling quantities.
	assert.Equal(t, MergeOutcomeReload, outcome)
	assert.Equal(t, remote.Version, merged.Version)
	require.Len(t, merged.Items, 2)
	for _, it := range merged.Items {
		if it.ProductID == "p1" {
			assert.Equal(t, 2, it.Quantity)
		}
	}
}

func TestResolveMergeAdditive(t *testing.T) {
	local := models.CartSnapshot{Items: []models.LineItem{line("A", "", 2, 1000)}}
	remote := models.CartSnapshot{
		Version: 4,
		Items:   []models.LineItem{line("A", "", 1, 1000), line("B", "", 3, 700)},
	}

	merged, outcome := ResolveMerge(local, remote)

	assert.Equal(t, MergeOutcomeUnion, outcome)
	require.Len(t, merged.Items, 2)
	byProduct := map[string]models.LineItem{}
	for _, it := range merged.Items {
		byProduct[it.ProductID] = it
	}
	assert.Equal(t, 3, byProduct["A"].Quantity)
	assert.Equal(t, 3, byProduct["B"].Quantity)
}

func TestResolveMergeFillsMissingFields(t *testing.T) {
	local := models.CartSnapshot{Items: []models.LineItem{{
		LineID: "local-1", ProductID: "A", Quantity: 1, UnitPrice: 1000,
		Title: "Widget", Image: "widget.png",
	}}}
	remote := models.CartSnapshot{Version: 2, Items: []models.LineItem{{
		LineID: "remote-1", ProductID: "A", Quantity: 2,
	}}}

	merged, outcome := ResolveMerge(local, remote)

	require.Equal(t, MergeOutcomeUnion, outcome)
	require.Len(t, merged.Items, 1)
	it := merged.Items[0]
	assert.Equal(t, 3, it.Quantity)
	assert.Equal(t, int64(1000), it.UnitPrice)
	assert.Equal(t, "Widget", it.Title)
	assert.Equal(t, "widget.png", it.Image)
	// Local lineID survives so undo references stay valid.
	assert.Equal(t, "local-1", it.LineID)
}

func TestResolveMergeLocalOnly(t *testing.T) {
	local := models.CartSnapshot{Items: []models.LineItem{line("A", "", 2, 1000)}}

	merged, outcome := ResolveMerge(local, models.CartSnapshot{})

	assert.Equal(t, MergeOutcomeUnion, outcome)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, 2, merged.Items[0].Quantity)
}

func TestMergeOnSignInPushesBaseline(t *testing.T) {
	docs := newFakeDocStore()
	docs.snap = &models.CartSnapshot{
		Version:  3,
		Items:    []models.LineItem{line("B", "", 1, 700)},
		Currency: "USD",
	}

	store := cart.NewStore("USD", nil, nil)
	coord := NewCoordinator(store, docs, "user-1", "client-A", 20*time.Millisecond)
	store.Subscribe(coord.OnLocalChange)
	store.AddItem(models.Product{ID: "A", Title: "A", Price: 1000, Category: "general"}, "", 2)

	outcome, err := coord.MergeOnSignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeUnion, outcome)

	items := store.Items()
	require.Len(t, items, 2)
	// Baseline push happened immediately, establishing a fresh version.
	assert.GreaterOrEqual(t, docs.pushCount(), 1)
	assert.Equal(t, int64(4), store.Version())
}

func TestMergeOnSignInReloadAdoptsRemote(t *testing.T) {
	docs := newFakeDocStore()
	remoteLine := line("A", "", 2, 1000)
	docs.snap = &models.CartSnapshot{Version: 6, Items: []models.LineItem{remoteLine}, Currency: "USD"}

	store := cart.NewStore("USD", nil, nil)
	coord := NewCoordinator(store, docs, "user-1", "client-A", 20*time.Millisecond)
	store.AdoptSnapshot(models.CartSnapshot{Items: []models.LineItem{line("A", "", 2, 1000)}})

	outcome, err := coord.MergeOnSignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MergeOutcomeReload, outcome)
	assert.Equal(t, 0, docs.pushCount())

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, int64(6), store.Version())
}
