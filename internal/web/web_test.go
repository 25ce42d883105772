package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/auth"
	"backoffice/internal/auth/provider"
)

type namedProvider struct{ name, display string }

func (p namedProvider) Name() string                            { return p.name }
func (p namedProvider) DisplayName() string                     { return p.display }
func (p namedProvider) AuthCodeURL(_, _ string) (string, error) { return "", nil }
func (p namedProvider) Authenticate(context.Context, string, string) (*auth.AuthenticateResult, error) {
	return nil, nil
}

func TestLoginPage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := provider.NewRegistry(
		namedProvider{"google", "Google"},
		namedProvider{"github", "GitHub"},
	)

	r := gin.New()
	Register(r, "Back-office", func() *provider.Registry { return reg })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, LoginPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<title>Back-office</title>")
	assert.Contains(t, body, `href="/oauth/login/github"`)
	assert.Contains(t, body, "Sign in with Google")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, staticPath+"/login.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/auth/login")
}

func TestLoginPage_NoProviders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	Register(r, "Back-office", func() *provider.Registry { return nil })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, LoginPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No external login providers are configured.")
}
