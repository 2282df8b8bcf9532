package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"kanbanServer/backend/internal/model"
)

type stubVerifier map[string]model.Identity

func (s stubVerifier) Verify(_ context.Context, token string) (model.Identity, error) {
	if token == "down" {
		return model.Identity{}, ErrUpstream
	}
	who, ok := s[token]
	if !ok {
		return model.Identity{}, ErrInvalidToken
	}
	return who, nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	v := stubVerifier{
		"good":    {ID: "u1", Name: "Ada", Email: "ada@example.com"},
		"partial": {ID: "u2"},
	}
	r := gin.New()
	r.GET("/me", AuthMiddleware(v), func(c *gin.Context) {
		who, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, who.ID)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	cases := []struct {
		name   string
		url    string
		header string
		status int
		body   string
	}{
		{"bearer header", "/me", "Bearer good", http.StatusOK, "u1"},
		{"lowercase scheme", "/me", "bearer good", http.StatusOK, "u1"},
		{"query token", "/me?token=good", "", http.StatusOK, "u1"},
		{"missing", "/me", "", http.StatusUnauthorized, ""},
		{"unknown token", "/me", "Bearer nope", http.StatusUnauthorized, ""},
		{"partial identity", "/me", "Bearer partial", http.StatusUnauthorized, ""},
		{"upstream down", "/me", "Bearer down", http.StatusBadGateway, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
			if tc.status == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "UNAUTHENTICATED")
			}
		})
	}
}

func TestIdentityFromMissing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := IdentityFrom(c)
	assert.False(t, ok)
}
