package authservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kanbanServer/backend/internal/httpapi/middleware"
	"kanbanServer/backend/internal/model"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"

	AccessTTL  = 30 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

type Claims struct {
	UserID string `json:"sub"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() model.Identity {
	return model.Identity{ID: c.UserID, Name: c.Name, Email: c.Email}
}

// Tokens signs and parses HS256 tokens with a shared secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens falls back to $JWT_SECRET, then to a development secret.
func NewTokens(secret string) *Tokens {
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		secret = "dev-secret"
	}
	return &Tokens{secret: []byte(secret), now: time.Now}
}

func (t *Tokens) sign(who model.Identity, typ string, ttl time.Duration) (string, time.Time, error) {
	exp := t.now().Add(ttl)
	claims := &Claims{
		UserID: who.ID,
		Name:   who.Name,
		Email:  who.Email,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(t.now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (t *Tokens) SignAccessToken(who model.Identity, ttl time.Duration) (string, time.Time, error) {
	return t.sign(who, TypeAccess, ttl)
}

func (t *Tokens) SignRefreshToken(who model.Identity, ttl time.Duration) (string, time.Time, error) {
	return t.sign(who, TypeRefresh, ttl)
}

// ParseToken accepts access and refresh tokens alike; callers check Type.
func (t *Tokens) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// Verify lets a board server check tokens locally with the shared secret.
func (t *Tokens) Verify(_ context.Context, tokenString string) (model.Identity, error) {
	claims, err := t.ParseToken(tokenString)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", middleware.ErrInvalidToken, err)
	}
	if claims.Type != TypeAccess {
		return model.Identity{}, fmt.Errorf("%w: access token required", middleware.ErrInvalidToken)
	}
	who := claims.Identity()
	if err := who.Validate(); err != nil {
		return model.Identity{}, errors.Join(middleware.ErrInvalidToken, err)
	}
	return who, nil
}
