package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"backoffice/internal/auth"
	"backoffice/internal/auth/credentials"
	"backoffice/internal/auth/provider"
	"backoffice/internal/auth/resolver"
	"backoffice/internal/metrics"
	"backoffice/internal/middleware"
	"backoffice/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProvider struct {
	claims jwt.MapClaims
	err    error
	urlErr error

	gotCode     string
	gotVerifier string
}

func (p *fakeProvider) Name() string        { return "acme" }
func (p *fakeProvider) DisplayName() string { return "Acme SSO" }

func (p *fakeProvider) AuthCodeURL(state, challenge string) (string, error) {
	if p.urlErr != nil {
		return "", p.urlErr
	}
	return "https://idp.example/authorize?state=" + url.QueryEscape(state) +
		"&code_challenge=" + url.QueryEscape(challenge), nil
}

func (p *fakeProvider) Authenticate(_ context.Context, code, verifier string) (*auth.AuthenticateResult, error) {
	p.gotCode, p.gotVerifier = code, verifier
	if p.err != nil {
		return nil, p.err
	}
	return &auth.AuthenticateResult{Identity: auth.IdentityFromClaims("acme", p.claims)}, nil
}

type fakeResolver struct {
	userID     string
	resolveErr error
	linkErr    error

	resolved *auth.ExternalLoginInfo
	linkedTo string
}

func (r *fakeResolver) Resolve(_ context.Context, info *auth.ExternalLoginInfo) (string, error) {
	r.resolved = info
	return r.userID, r.resolveErr
}

func (r *fakeResolver) Link(_ context.Context, userID string, info *auth.ExternalLoginInfo) error {
	r.linkedTo = userID
	r.resolved = info
	return r.linkErr
}

type fakeCredentials struct {
	userID string
	err    error
}

func (f fakeCredentials) Authenticate(context.Context, string, string) (string, error) {
	return f.userID, f.err
}

type fixture struct {
	router   *gin.Engine
	provider *fakeProvider
	resolver *fakeResolver
	store    session.Store
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, creds PasswordAuthenticator) *fixture {
	t.Helper()

	f := &fixture{
		provider: &fakeProvider{claims: jwt.MapClaims{
			"iss":   "https://idp.example",
			"sub":   "ext-123",
			"name":  "Jane Q Doe",
			"email": "jane@example.com",
		}},
		resolver: &fakeResolver{userID: "user-1"},
		store:    session.NewMemoryStore(),
		metrics:  metrics.New(),
	}

	h := NewHandler(
		provider.NewRegistry(f.provider),
		f.store,
		f.resolver,
		creds,
		f.metrics,
		Options{SessionTTL: time.Hour},
	)

	f.router = gin.New()
	h.RegisterRoutes(f.router, middleware.GinRequireAuth(middleware.NewAuthMiddleware(f.store)))
	return f
}

func (f *fixture) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// startLogin runs the redirect step and returns the state and flow cookies.
func (f *fixture) startLogin(t *testing.T, path string, cookies ...*http.Cookie) (string, []*http.Cookie) {
	t.Helper()

	rec := f.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	var flow []*http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge > 0 {
			flow = append(flow, c)
		}
	}
	return loc.Query().Get("state"), flow
}

func (f *fixture) callback(state string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	target := "/oauth/callback/acme?code=the-code&state=" + url.QueryEscape(state)
	return f.do(httptest.NewRequest(http.MethodGet, target, nil), cookies...)
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLogin_RedirectsWithStateAndPKCE(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/login/acme", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example", loc.Host)

	state := cookieNamed(rec, stateCookieName)
	verifier := cookieNamed(rec, pkceCookieName)
	require.NotNil(t, state)
	require.NotNil(t, verifier)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier.Value), loc.Query().Get("code_challenge"))
	assert.True(t, state.HttpOnly)
	assert.False(t, isLinkState(state.Value))
}

func TestLogin_AuthorizationURLError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.provider.urlErr = errors.New("begin auth failed")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/login/acme", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.JSONEq(t, `{"error":"failed to start login"}`, rec.Body.String())
}

func TestLogin_UnknownProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/login/nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"unknown oauth provider"}`, rec.Body.String())
}

func TestCallback_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	state, cookies := f.startLogin(t, "/oauth/login/acme")

	rec := f.callback(state, cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"authenticated"}`, rec.Body.String())

	assert.Equal(t, "the-code", f.provider.gotCode)
	assert.NotEmpty(t, f.provider.gotVerifier)

	require.NotNil(t, f.resolver.resolved)
	assert.Equal(t, auth.UserLoginInfo{LoginProvider: "https://idp.example", ProviderKey: "ext-123"}, f.resolver.resolved.Login)
	assert.Equal(t, "JaneQDoe", f.resolver.resolved.DefaultUserName)
	assert.Equal(t, "jane@example.com", f.resolver.resolved.Email)

	sc := cookieNamed(rec, session.CookieName)
	require.NotNil(t, sc)
	sess, err := f.store.Get(context.Background(), sc.Value)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, "https://idp.example", sess.LoginProvider)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExternalLogins.WithLabelValues("acme", metrics.OutcomeSuccess)))
}

func TestCallback_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(f *fixture)
		status  int
		outcome string
	}{
		{
			name:    "no name identifier",
			setup:   func(f *fixture) { delete(f.provider.claims, "sub") },
			status:  http.StatusUnauthorized,
			outcome: metrics.OutcomeNoIdentifier,
		},
		{
			name:    "not linked",
			setup:   func(f *fixture) { f.resolver.resolveErr = resolver.ErrNotLinked },
			status:  http.StatusForbidden,
			outcome: metrics.OutcomeNotLinked,
		},
		{
			name:    "resolver error",
			setup:   func(f *fixture) { f.resolver.resolveErr = errors.New("db down") },
			status:  http.StatusInternalServerError,
			outcome: metrics.OutcomeError,
		},
		{
			name:    "provider error",
			setup:   func(f *fixture) { f.provider.err = errors.New("bad code") },
			status:  http.StatusUnauthorized,
			outcome: metrics.OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil)
			tt.setup(f)
			state, cookies := f.startLogin(t, "/oauth/login/acme")

			rec := f.callback(state, cookies...)
			assert.Equal(t, tt.status, rec.Code)
			assert.Nil(t, cookieNamed(rec, session.CookieName))
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExternalLogins.WithLabelValues("acme", tt.outcome)))
		})
	}
}

func TestCallback_InvalidState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, cookies := f.startLogin(t, "/oauth/login/acme")

	rec := f.callback("forged", cookies...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.provider.gotCode)
}

func TestCallback_ProviderErrorRedirectsToLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	state, cookies := f.startLogin(t, "/oauth/login/acme")

	target := "/oauth/callback/acme?error=access_denied&state=" + url.QueryEscape(state)
	rec := f.do(httptest.NewRequest(http.MethodGet, target, nil), cookies...)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/backoffice/login", rec.Header().Get("Location"))
}

func TestCallback_MissingCodeOrVerifier(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	state, cookies := f.startLogin(t, "/oauth/login/acme")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/callback/acme?state="+url.QueryEscape(state), nil), cookies...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var stateOnly []*http.Cookie
	for _, c := range cookies {
		if c.Name == stateCookieName {
			stateOnly = append(stateOnly, c)
		}
	}
	rec = f.callback(state, stateOnly...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing pkce verifier"}`, rec.Body.String())
}

func (f *fixture) signIn(t *testing.T, userID string) *http.Cookie {
	t.Helper()

	require.NoError(t, f.store.Create(context.Background(), session.Session{
		SessionID: "sid-" + userID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	return &http.Cookie{Name: session.CookieName, Value: "sid-" + userID}
}

func TestLink(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	sc := f.signIn(t, "user-7")

	state, cookies := f.startLogin(t, "/backoffice/api/link/acme", sc)
	require.NotNil(t, findCookie(cookies, linkCookieName))

	rec := f.callback(state, append(cookies, sc)...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"linked"}`, rec.Body.String())
	assert.Equal(t, "user-7", f.resolver.linkedTo)
	assert.Equal(t, "ext-123", f.resolver.resolved.Login.ProviderKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExternalLogins.WithLabelValues("acme", metrics.OutcomeLinked)))
}

func TestLink_AbandonedLinkDoesNotTakeOverLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	sc := f.signIn(t, "user-7")

	_, linkCookies := f.startLogin(t, "/backoffice/api/link/acme", sc)
	leftover := findCookie(linkCookies, linkCookieName)
	require.NotNil(t, leftover)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), sc)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// a fresh sign-in clears the link cookie
	rec = f.do(httptest.NewRequest(http.MethodGet, "/oauth/login/acme", nil), leftover)
	require.Equal(t, http.StatusFound, rec.Code)
	cleared := cookieNamed(rec, linkCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	// and its callback signs in even if the browser still sends it
	state, cookies := f.startLogin(t, "/oauth/login/acme")
	rec = f.callback(state, append(cookies, leftover)...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"authenticated"}`, rec.Body.String())
	assert.Empty(t, f.resolver.linkedTo)
	require.NotNil(t, f.resolver.resolved)
	assert.NotNil(t, cookieNamed(rec, session.CookieName))
}

func TestLink_CallbackWithoutLinkCookie(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	sc := f.signIn(t, "user-7")
	state, cookies := f.startLogin(t, "/backoffice/api/link/acme", sc)
	require.True(t, isLinkState(state))

	var withoutLink []*http.Cookie
	for _, c := range cookies {
		if c.Name != linkCookieName {
			withoutLink = append(withoutLink, c)
		}
	}

	rec := f.callback(state, append(withoutLink, sc)...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.resolver.linkedTo)
	assert.Nil(t, f.resolver.resolved)
}

func TestLink_RejectsDifferentSignedInUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	started := f.signIn(t, "user-7")
	state, cookies := f.startLogin(t, "/backoffice/api/link/acme", started)

	other := f.signIn(t, "user-8")
	rec := f.callback(state, append(cookies, other)...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.resolver.linkedTo)
}

func TestLink_AlreadyLinked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.resolver.linkErr = resolver.ErrAlreadyLinked
	sc := f.signIn(t, "user-7")
	state, cookies := f.startLogin(t, "/backoffice/api/link/acme", sc)

	rec := f.callback(state, append(cookies, sc)...)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLink_RequiresSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/backoffice/api/link/acme", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestProviders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/backoffice/api/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"providers":[{"name":"acme","display_name":"Acme SSO","login_url":"/oauth/login/acme"}]}`,
		rec.Body.String())
}

func TestPasswordLogin(t *testing.T) {
	t.Parallel()

	body := `{"email":"admin@example.com","password":"correct horse"}`

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, fakeCredentials{userID: "user-1"})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := f.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		sc := cookieNamed(rec, session.CookieName)
		require.NotNil(t, sc)
		sess, err := f.store.Get(context.Background(), sc.Value)
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, LocalLoginProvider, sess.LoginProvider)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PasswordLogins.WithLabelValues(metrics.OutcomeSuccess)))
	})

	t.Run("invalid credentials", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, fakeCredentials{err: credentials.ErrInvalidCredentials})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := f.do(req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PasswordLogins.WithLabelValues(metrics.OutcomeInvalid)))
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, fakeCredentials{})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":""}`))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	sc := f.signIn(t, "user-1")

	rec := f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), sc)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := cookieNamed(rec, session.CookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	sess, err := f.store.Get(context.Background(), sc.Value)
	require.NoError(t, err)
	assert.Nil(t, sess)

	// again, without a session
	rec = f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
