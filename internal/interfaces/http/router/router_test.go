package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	var hits []string
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) { hits = append(hits, name) }
	}

	group := NewDomainGroup("/ledger").Use(mark("group")).
		GET("/invoices/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) }).
		PUT("/quotes/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, "/ledger", group.Prefix())

	NewRouter(engine, WithAPIVersion("v2"), WithMiddleware(mark("api"))).Register(group).Setup()
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/ledger/invoices/inv_1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inv_1", w.Body.String())
	assert.Equal(t, []string{"api", "group"}, hits)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v2/ledger/quotes/qt_1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	hits = nil
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, hits, "API middleware does not wrap engine routes")
}

func TestLedgerGroups_Routes(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).Register(LedgerGroups(Handlers{})...).Setup()

	routes := map[string]bool{}
	for _, r := range engine.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/feeds/billable-events",
		"POST /api/v1/feeds/bindings",
		"POST /api/v1/ledger/approvals",
		"POST /api/v1/ledger/quotes",
		"PUT /api/v1/ledger/quotes/:id",
		"POST /api/v1/ledger/quotes/:id/issue",
		"POST /api/v1/ledger/quotes/:id/accept",
		"POST /api/v1/ledger/invoices",
		"GET /api/v1/ledger/invoices/:id",
		"POST /api/v1/ledger/invoices/:id/lines",
		"POST /api/v1/ledger/invoices/:id/finalize",
		"GET /api/v1/ledger/invoices/:id/adjustments",
		"POST /api/v1/ledger/invoices/:id/adjustments",
		"GET /api/v1/ledger/invoices/:id/lineage",
		"POST /api/v1/ledger/bindings/:id/rebind",
		"POST /api/v1/ledger/lineage/rebuild",
		"GET /api/v1/portal/clients/:client_id/artifacts",
	} {
		assert.True(t, routes[want], want)
	}
}
