package auth

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yourusername/evaluation-api/internal/domain/entity"
	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

const (
	// usageWSTicket помечает короткоживущий тикет для WebSocket
	usageWSTicket = "websocket_auth"

	wsAudience = "evaluation-ws"
)

// JWTCustomClaims содержит идентификатор учащегося, выданный контекстом идентификации
type JWTCustomClaims struct {
	EmployeID uint   `json:"employe_id"`
	Email     string `json:"email"`
	// SessionID заполняется только в WS-тикете
	SessionID string `json:"session_id,omitempty"`
	Usage     string `json:"usage,omitempty"`
	jwt.RegisteredClaims
}

// Learner возвращает учащегося из claims
func (c *JWTCustomClaims) Learner() entity.Learner {
	return entity.Learner{ID: c.EmployeID, Email: c.Email}
}

// JWTService проверяет токены учащихся (HMAC) и выдает WS-тикеты
type JWTService struct {
	secret         []byte
	issuer         string
	tokenTTL       time.Duration
	wsTicketExpiry time.Duration
	now            func() time.Time
}

// NewJWTService создает сервис JWT
func NewJWTService(secret, issuer string, tokenTTL, wsTicketExpiry time.Duration) (*JWTService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if wsTicketExpiry <= 0 {
		wsTicketExpiry = 60 * time.Second
	}
	return &JWTService{
		secret:         []byte(secret),
		issuer:         issuer,
		tokenTTL:       tokenTTL,
		wsTicketExpiry: wsTicketExpiry,
		now:            time.Now,
	}, nil
}

// GenerateToken выдает токен учащегося. В проде токены выпускает
// контекст идентификации; метод нужен для локального режима и тестов.
func (s *JWTService) GenerateToken(learner entity.Learner) (string, error) {
	now := s.now()
	claims := &JWTCustomClaims{
		EmployeID: learner.ID,
		Email:     learner.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(uint64(learner.ID), 10),
		},
	}
	return s.sign(claims)
}

// GenerateWSTicket выдает тикет для подключения к событиям одной сессии
func (s *JWTService) GenerateWSTicket(learner entity.Learner, sessionID string) (string, error) {
	now := s.now()
	claims := &JWTCustomClaims{
		EmployeID: learner.ID,
		Email:     learner.Email,
		SessionID: sessionID,
		Usage:     usageWSTicket,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.wsTicketExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(uint64(learner.ID), 10),
			Audience:  jwt.ClaimStrings{wsAudience},
		},
	}

	ticket, err := s.sign(claims)
	if err != nil {
		return "", err
	}
	log.Printf("[JWT] WS-тикет выдан учащемуся ID=%d для сессии %s, истекает через %v", learner.ID, sessionID, s.wsTicketExpiry)
	return ticket, nil
}

func (s *JWTService) sign(claims *JWTCustomClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken проверяет токен учащегося. WS-тикет здесь не принимается.
func (s *JWTService) ParseToken(tokenString string) (*JWTCustomClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Usage == usageWSTicket {
		return nil, fmt.Errorf("%w: websocket ticket used as access token", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// ParseWSTicket проверяет тикет WebSocket
func (s *JWTService) ParseWSTicket(ticket string) (*JWTCustomClaims, error) {
	claims, err := s.parse(ticket)
	if err != nil {
		return nil, err
	}
	if claims.Usage != usageWSTicket || !claims.VerifyAudience(wsAudience, true) {
		return nil, fmt.Errorf("%w: not a websocket ticket", apperrors.ErrUnauthorized)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: ticket has no session", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) {
			switch {
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, apperrors.ErrExpiredToken
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, fmt.Errorf("%w: token is malformed", apperrors.ErrUnauthorized)
			case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
				log.Printf("[JWT] Неверная подпись токена")
				return nil, fmt.Errorf("%w: signature is invalid", apperrors.ErrUnauthorized)
			}
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperrors.ErrUnauthorized)
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", apperrors.ErrUnauthorized)
	}
	if claims.EmployeID == 0 {
		return nil, fmt.Errorf("%w: token has no employe_id", apperrors.ErrUnauthorized)
	}
	return claims, nil
}
