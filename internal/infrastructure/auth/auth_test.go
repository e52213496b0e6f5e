package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagevault/internal/config"
)

const testSecret = "unit-test-secret"

func newSecretValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(context.Background(), &config.Config{AuthSecret: testSecret}, zerolog.Nop())
	require.NoError(t, err)
	return v
}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doRequest(v *Validator, authHeader string) (*httptest.ResponseRecorder, string) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	var gotOwner string
	router.GET("/probe", v.Middleware(), func(c *gin.Context) {
		gotOwner = OwnerID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, gotOwner
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	v := newSecretValidator(t)
	token := signToken(t, jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	w, owner := doRequest(v, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", owner)
}

func TestMiddlewareFallsBackToSubjectClaim(t *testing.T) {
	v := newSecretValidator(t)
	token := signToken(t, jwt.MapClaims{
		"sub": "subject-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	w, owner := doRequest(v, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "subject-7", owner)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	w, _ := doRequest(newSecretValidator(t), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	v := newSecretValidator(t)
	token := signToken(t, jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, "some-other-secret")

	w, _ := doRequest(v, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	v := newSecretValidator(t)
	token := signToken(t, jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}, testSecret)

	w, _ := doRequest(v, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareRejectsTokenWithoutIdentity(t *testing.T) {
	v := newSecretValidator(t)
	token := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	w, _ := doRequest(v, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	v := newSecretValidator(t)
	w, _ := doRequest(v, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReady(t *testing.T) {
	assert.True(t, newSecretValidator(t).Ready())

	var nilValidator *Validator
	assert.False(t, nilValidator.Ready())
}
