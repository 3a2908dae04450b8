package middleware

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
	"github.com/yourusername/evaluation-api/pkg/auth"
)

// Ключи контекста Gin
const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
)

// ServiceKeyHeader - заголовок ключа для внутренних эндпоинтов коллабораторов
const ServiceKeyHeader = "X-Service-Key"

// AuthMiddleware обеспечивает аутентификацию учащихся
type AuthMiddleware struct {
	jwtService *auth.JWTService
}

// NewAuthMiddleware создает middleware аутентификации
func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// RequireAuth проверяет токен учащегося из заголовка Authorization
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			return
		}

		claims, err := m.jwtService.ParseToken(parts[1])
		if err != nil {
			errorType := "token_invalid"
			if errors.Is(err, apperrors.ErrExpiredToken) {
				errorType = "token_expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": errorType})
			return
		}

		c.Set(ContextUserID, claims.EmployeID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// RequireServiceKey защищает эндпоинты коллабораторов общим ключом.
// Пустой ключ в конфигурации закрывает доступ полностью.
func RequireServiceKey(serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(ServiceKeyHeader)
		if serviceKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(serviceKey)) != 1 {
			log.Printf("[ServiceKey] Отказ в доступе к %s с %s", c.FullPath(), c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid service key", "error_type": "service_key_invalid"})
			return
		}
		c.Next()
	}
}
