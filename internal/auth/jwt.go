package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"namlong/internal/models"
)

const sessionTokenIssuer = "namlong-chat"

var ErrInvalidToken = errors.New("invalid session token")

// JWTService issues and verifies the bearer tokens of widget chat sessions.
type JWTService struct {
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
}

type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewJWTService(secret string, sessionTTL time.Duration) *JWTService {
	return &JWTService{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

func (s *JWTService) GenerateSessionToken(session *models.ChatSession) (*SessionToken, error) {
	now := s.now()
	expiry := now.Add(s.sessionTTL)
	claims := Claims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionTokenIssuer,
			Subject:   session.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	return &SessionToken{Token: signed, ExpiresAt: expiry}, nil
}

func (s *JWTService) ValidateSessionToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionTokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *JWTService) SessionTTL() time.Duration {
	return s.sessionTTL
}
