package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-notebook-go/pkg/metrics"
	"smart-notebook-go/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(jwtManager *token.JWTManager) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(), Metrics())
	authed := r.Group("/api", AuthMiddleware(jwtManager))
	authed.GET("/whoami", func(c *gin.Context) {
		id, ok := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "ok": ok})
	})
	authed.POST("/admin/sweep", AdminAuthMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func request(r http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", 1)
	r := newRouter(jwtManager)
	signed, err := jwtManager.GenerateToken(42, "alice", "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/whoami", signed).Code, "missing Bearer prefix")
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/whoami", "Bearer not-a-jwt").Code)

	other, err := token.NewJWTManager("other-secret", 1).GenerateToken(42, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/api/whoami", "Bearer "+other).Code)

	w := request(r, http.MethodGet, "/api/whoami", "Bearer "+signed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":42,"ok":true}`, w.Body.String())
}

func TestAdminAuthMiddleware(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", 1)
	r := newRouter(jwtManager)

	user, err := jwtManager.GenerateToken(1, "alice", "")
	require.NoError(t, err)
	admin, err := jwtManager.GenerateToken(2, "root", token.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPost, "/api/admin/sweep", "Bearer "+user).Code)
	assert.Equal(t, http.StatusNoContent, request(r, http.MethodPost, "/api/admin/sweep", "Bearer "+admin).Code)
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/notebooks/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	matched := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/notebooks/:id", "200")
	unmatched := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	beforeMatched, beforeUnmatched := testutil.ToFloat64(matched), testutil.ToFloat64(unmatched)

	request(r, http.MethodGet, "/notebooks/a", "")
	request(r, http.MethodGet, "/notebooks/b", "")
	request(r, http.MethodGet, "/nope", "")

	assert.Equal(t, beforeMatched+2, testutil.ToFloat64(matched))
	assert.Equal(t, beforeUnmatched+1, testutil.ToFloat64(unmatched))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate([]byte("short")))
	long := strings.Repeat("a", maxLoggedBody+10)
	assert.True(t, strings.HasSuffix(truncate([]byte(long)), "...(truncated)"))
}
