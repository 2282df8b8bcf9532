package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kanbanServer/backend/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUpstream     = errors.New("auth upstream error")
)

const identityKey = "identity"

// Verifier maps a bearer token to a verified identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (model.Identity, error)
}

type verifyErrResp struct {
	Error string `json:"error"`
}

type VerifyClaims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Type   string `json:"typ"`
}

// RemoteVerifier asks the auth service's /v1/auth/verify endpoint.
type RemoteVerifier struct {
	verifyURL string
	client    *http.Client
	timeout   time.Duration
}

// NewRemoteVerifier takes the auth service base URL without a path, e.g.
// http://localhost:3001.
func NewRemoteVerifier(authBaseURL string) *RemoteVerifier {
	return &RemoteVerifier{
		verifyURL: strings.TrimRight(authBaseURL, "/") + "/v1/auth/verify",
		client:    &http.Client{},
		timeout:   1200 * time.Millisecond,
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (model.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		var e verifyErrResp
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = "rejected"
		}
		return model.Identity{}, fmt.Errorf("%w: %s", ErrInvalidToken, e.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Identity{}, fmt.Errorf("%w: verify returned %d", ErrUpstream, resp.StatusCode)
	}

	var claims VerifyClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return model.Identity{}, fmt.Errorf("%w: invalid verify response", ErrUpstream)
	}
	if claims.Type != "" && claims.Type != "access" {
		return model.Identity{}, fmt.Errorf("%w: access token required", ErrInvalidToken)
	}
	return model.Identity{ID: claims.UserID, Name: claims.Name, Email: claims.Email}, nil
}

// AuthMiddleware rejects requests without a valid token before any handler
// runs. The token comes from the Authorization header or, for browsers
// opening a WebSocket, from ?token=.
func AuthMiddleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.Request.Header.Get("Authorization"))
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "Authorization header is missing or invalid",
			})
			return
		}

		who, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": err.Error()})
				return
			}
			log.WithError(err).Warn("token verification failed")
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"code": "AUTH_UPSTREAM_ERROR", "message": "auth service verify failed"})
			return
		}
		if err := who.Validate(); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": err.Error()})
			return
		}

		c.Set(identityKey, who)
		c.Set("userId", who.ID)
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	who, ok := v.(model.Identity)
	return who, ok
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
