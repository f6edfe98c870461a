package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	userID string
	role   string
	err    error
}

func (f *fakeAuth) ParseAuthContext(token string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.userID, f.role, nil
}

func newRouter(auth *fakeAuth, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthRequired(auth)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(ContextUserID),
			"role":    c.GetString(ContextRole),
		})
	})
	r.GET("/protected", handlers...)
	return r
}

func TestAuthRequiredMissingHeader(t *testing.T) {
	r := newRouter(&fakeAuth{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequiredInvalidToken(t *testing.T) {
	r := newRouter(&fakeAuth{err: errors.New("bad token")})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequiredSetsContext(t *testing.T) {
	r := newRouter(&fakeAuth{userID: "u-1", role: "admin"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer ok")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"user_id":"u-1"`)
	require.Contains(t, w.Body.String(), `"role":"admin"`)
}

func TestRequireRoles(t *testing.T) {
	r := newRouter(&fakeAuth{userID: "u-1", role: "user"}, RequireRoles("admin"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer ok")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	r = newRouter(&fakeAuth{userID: "u-1", role: "admin"}, RequireRoles("admin"))
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer ok")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
