package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/config"
	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/core/schema"
	"tabula/internal/core/session"
	"tabula/internal/object"
	"tabula/internal/register"
	"tabula/internal/storage"
	"tabula/internal/storage/memory"
	"tabula/pkg/logger"
)

func testRouter(t *testing.T) (*gin.Engine, *memory.Store, *object.Factory) {
	t.Helper()

	registry := schema.NewRegistry()
	registry.Register(&schema.EntityDef{
		Kind:  basis.KindDocument,
		Name:  "GoodsReceipt",
		Table: "doc_goods_receipts",
		Fields: []schema.FieldDef{
			{Name: "number", Type: schema.TypeString},
		},
		Presentation: []string{"number"},
	})

	store := memory.NewStore()
	factory := object.NewFactory(store, registry)
	source := func(ctx context.Context, doc *object.DocumentObject) (map[string][]storage.Movement, error) {
		return nil, nil
	}

	router := NewRouter(RouterConfig{
		Gateway:  store,
		Registry: registry,
		Factory:  factory,
		Locks:    object.NewLockManager(store),
		Reposter: register.NewReposter(store, factory, source),
		Logger:   logger.Default(),
		Engine: config.EngineConfig{
			PageSize:      2,
			SearchLimit:   10,
			VersionsLimit: 10,
		},
	})
	return router, store, factory
}

func seedReceipts(t *testing.T, factory *object.Factory, n int) []id.ID {
	t.Helper()
	ctx := session.WithSession(context.Background(), session.Session{
		UserID:    "tester",
		SessionID: "sess-1",
	})
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]id.ID, 0, n)
	for i := 0; i < n; i++ {
		doc, err := factory.Document("Documents.GoodsReceipt")
		require.NoError(t, err)
		doc.New()
		require.NoError(t, doc.SetValue("number", fmt.Sprintf("GR-%04d", i+1)))
		require.NoError(t, doc.Save(ctx))
		require.NoError(t, doc.Spend(ctx, true, base.AddDate(0, 0, i)))
		ids = append(ids, doc.ID())
	}
	return ids
}

func doRequest(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-User-ID", "tester")
	req.Header.Set("X-Session-ID", "sess-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListDocumentsAnchorSelectsPage(t *testing.T) {
	router, _, factory := testRouter(t)
	ids := seedReceipts(t, factory, 5)

	// The anchor sits at position 3 of 5; with two rows per page that
	// is page 2, starting at offset 2.
	rec := doRequest(router, http.MethodGet,
		"/api/v1/documents/GoodsReceipt?anchor="+ids[3].String())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Page      int `json:"page"`
		PageCount int `json:"page_count"`
		Offset    int `json:"offset"`
		Items     []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 3, resp.PageCount)
	assert.Equal(t, 2, resp.Offset)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, ids[2].String(), resp.Items[0].ID)
	assert.Equal(t, ids[3].String(), resp.Items[1].ID)
}

func TestListDocumentsInvalidAnchor(t *testing.T) {
	router, _, factory := testRouter(t)
	seedReceipts(t, factory, 1)

	rec := doRequest(router, http.MethodGet,
		"/api/v1/documents/GoodsReceipt?anchor=not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDocumentsWithoutAnchor(t *testing.T) {
	router, _, factory := testRouter(t)
	seedReceipts(t, factory, 3)

	rec := doRequest(router, http.MethodGet, "/api/v1/documents/GoodsReceipt")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// Plain listings honor the configured page size.
	assert.Len(t, resp.Items, 2)
}
