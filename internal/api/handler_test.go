package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cart-sync-service/config"
	"cart-sync-service/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIDSource struct {
	ids map[string]string
}

func (f *fakeIDSource) GetOrCreateClientID(ctx context.Context, sessionKey string) (string, error) {
	if id, ok := f.ids[sessionKey]; ok {
		return id, nil
	}
	id := fmt.Sprintf("client-%d", len(f.ids)+1)
	f.ids[sessionKey] = id
	return id, nil
}

func testRouter(t *testing.T, ids ClientIDSource) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := engine.NewManager(config.CartConfig{Currency: "USD"}, engine.Deps{})
	t.Cleanup(manager.StopAll)

	router := gin.New()
	NewHandler(manager, nil, ids).SetupRoutes(router)
	return router
}

func TestSessionRequiresClientIdentity(t *testing.T) {
	router := testRouter(t, &fakeIDSource{ids: map[string]string{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionMintsClientIDFromSessionKey(t *testing.T) {
	router := testRouter(t, &fakeIDSource{ids: map[string]string{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Session-Key", "sess-1")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	minted := w.Header().Get("X-Client-ID")
	assert.Equal(t, "client-1", minted)

	// The same session key resolves to the same client id.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Session-Key", "sess-1")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, minted, w.Header().Get("X-Client-ID"))
}

func TestSessionAcceptsClientIDHeader(t *testing.T) {
	router := testRouter(t, &fakeIDSource{ids: map[string]string{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Client-ID", "client-A")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
