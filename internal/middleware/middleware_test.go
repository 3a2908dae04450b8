package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	"github.com/yourusername/evaluation-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key-with-at-least-32-bytes"

func newJWT(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(testSecret, "test", time.Hour, time.Minute)
	require.NoError(t, err)
	return svc
}

func serve(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	jwtService := newJWT(t)
	token, err := jwtService.GenerateToken(entity.Learner{ID: 42, Email: "learner@example.com"})
	require.NoError(t, err)
	ticket, err := jwtService.GenerateWSTicket(entity.Learner{ID: 42}, "sid")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", NewAuthMiddleware(jwtService).RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.MustGet(ContextUserID), "email": c.GetString(ContextEmail)})
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"ws ticket is not a token", "Bearer " + ticket, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := serve(router, "GET", "/me", headers)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestRequireServiceKey(t *testing.T) {
	router := gin.New()
	router.GET("/internal", RequireServiceKey("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	closed := gin.New()
	closed.GET("/internal", RequireServiceKey(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/internal", map[string]string{ServiceKeyHeader: "s3cret"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "GET", "/internal", map[string]string{ServiceKeyHeader: "wrong"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "GET", "/internal", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(closed, "GET", "/internal", map[string]string{ServiceKeyHeader: ""}).Code,
		"Пустой ключ в конфигурации закрывает доступ")
}

func TestExtractParams(t *testing.T) {
	router := gin.New()
	router.GET("/evaluations/:id", ExtractUintParam("id", "evaluationID"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.MustGet("evaluationID")})
	})
	router.GET("/sessions/:sid", ExtractUUIDParam("sid", "sessionID"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sid": c.MustGet("sessionID")})
	})

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/evaluations/12", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, "GET", "/evaluations/0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, "GET", "/evaluations/abc", nil).Code)

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/sessions/3f2b8c1e-6a4d-4c8e-9f1a-2b3c4d5e6f70", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, "GET", "/sessions/not-a-uuid", nil).Code)
}

func TestRateLimiter_FailOpenWithoutRedis(t *testing.T) {
	// Arrange: Redis недоступен
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	router := gin.New()
	router.POST("/submit", NewRateLimiter(client).Limit(SubmitRateLimitConfig()), func(c *gin.Context) { c.Status(http.StatusOK) })

	// Act
	w := serve(router, "POST", "/submit", nil)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code, "Ошибка Redis не должна блокировать запрос")
}
