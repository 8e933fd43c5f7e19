package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/readalong/internal/auth"
	"github.com/mrlokans/readalong/internal/entities"
)

func setupAuthRouter(authenticator DeviceAuthenticator) *gin.Engine {
	router := gin.New()
	router.Use(TokenAuthMiddleware(authenticator))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"device": DeviceName(c)})
	})
	return router
}

func TestTokenAuthMiddleware_ValidToken(t *testing.T) {
	router := setupAuthRouter(&fakeAuthenticator{device: &entities.Device{ID: "dev-1", Name: "phone"}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token dev-1.secret")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "phone")
}

func TestTokenAuthMiddleware_MissingHeader(t *testing.T) {
	router := setupAuthRouter(&fakeAuthenticator{device: &entities.Device{ID: "dev-1"}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTokenAuthMiddleware_WrongScheme(t *testing.T) {
	router := setupAuthRouter(&fakeAuthenticator{device: &entities.Device{ID: "dev-1"}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer dev-1.secret")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTokenAuthMiddleware_RejectedToken(t *testing.T) {
	router := setupAuthRouter(&fakeAuthenticator{err: auth.ErrInvalidSecret})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token dev-1.forged")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_HealthIsPublic(t *testing.T) {
	router := NewRouter(RouterConfig{
		ProgressStore: newFakeProgressStore(),
		Authenticator: &fakeAuthenticator{err: auth.ErrInvalidToken},
		Version:       "test",
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	// The auth check endpoint still requires a token.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
