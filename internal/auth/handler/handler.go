package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/internal/auth"
	"backoffice/internal/auth/provider"
	"backoffice/internal/auth/resolver"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/middleware"
	"backoffice/internal/session"
)

// XsrfKey is the authentication property holding the user id of a
// signed-in user who started a link flow.
const XsrfKey = "XsrfId"

// PasswordAuthenticator checks local back-office credentials.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, email, password string) (userID string, err error)
}

type Options struct {
	SessionTTL   time.Duration
	CookieSecure bool
	// LoginPath is where failed provider round trips are sent back to.
	LoginPath string
}

type Handler struct {
	providers    *provider.Registry
	sessionStore session.Store
	resolver     resolver.Resolver
	credentials  PasswordAuthenticator
	metrics      *metrics.Metrics
	opts         Options
}

func NewHandler(
	registry *provider.Registry,
	sessionStore session.Store,
	resolver resolver.Resolver,
	credentials PasswordAuthenticator,
	m *metrics.Metrics,
	opts Options,
) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/backoffice/login"
	}
	return &Handler{
		providers:    registry,
		sessionStore: sessionStore,
		resolver:     resolver,
		credentials:  credentials,
		metrics:      m,
		opts:         opts,
	}
}

// RegisterRoutes mounts the login routes. requireAuth guards the routes
// that need a signed-in user.
func (h *Handler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)

	r.GET("/backoffice/api/providers", h.Providers)
	r.GET("/backoffice/api/link/:provider", requireAuth, h.link)
}

func (h *Handler) login(c *gin.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown oauth provider"})
		return
	}

	if flowCookie(c, linkCookieName) != "" {
		clearFlowCookie(c, linkCookieName, h.opts.CookieSecure)
	}
	h.redirectToProvider(c, p, false)
}

// link starts an external login for the signed-in user. The callback
// attaches the login to that user instead of signing in.
func (h *Handler) link(c *gin.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown oauth provider"})
		return
	}

	userID, ok := middleware.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	setFlowCookie(c, linkCookieName, userID, h.opts.CookieSecure)
	h.redirectToProvider(c, p, true)
}

func (h *Handler) redirectToProvider(c *gin.Context, p provider.OAuthProvider, link bool) {
	state, err := generateState(c, h.opts.CookieSecure, link)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}
	_, codeChallenge := generatePKCE(c, h.opts.CookieSecure)

	authURL, err := p.AuthCodeURL(state, codeChallenge)
	if err != nil || authURL == "" {
		logger.From(c.Request.Context()).Error("failed to build authorization url",
			logger.Provider(p.Name()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")
	log := logger.From(c.Request.Context()).With(logger.Provider(providerName))

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown oauth provider"})
		return
	}

	if !validateState(c) {
		h.metrics.ExternalLogin(providerName, metrics.OutcomeInvalid)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid state"})
		return
	}
	clearFlowCookie(c, stateCookieName, h.opts.CookieSecure)

	// The provider aborted the round trip (user cancelled, consent denied).
	// Send the user back to start a fresh login.
	if errParam := c.Query("error"); errParam != "" {
		log.Warn("oauth callback returned error",
			zap.String("error", errParam),
			zap.String("description", c.Query("error_description")),
		)
		c.Redirect(http.StatusFound, h.opts.LoginPath)
		return
	}

	code := c.Query("code")
	if code == "" {
		log.Error("oauth callback missing code and error")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing pkce verifier"})
		return
	}
	clearFlowCookie(c, pkceCookieName, h.opts.CookieSecure)

	result, err := p.Authenticate(c.Request.Context(), code, codeVerifier)
	if err != nil {
		log.Warn("provider authentication failed", zap.Error(err))
		h.metrics.ExternalLogin(providerName, metrics.OutcomeError)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	linkFor := flowCookie(c, linkCookieName)
	if linkFor != "" {
		clearFlowCookie(c, linkCookieName, h.opts.CookieSecure)
	}
	if isLinkState(c.Query("state")) {
		h.completeLink(c, log, providerName, result, linkFor)
		return
	}

	info := auth.ExternalLogin(result)
	if info == nil {
		log.Warn("external identity has no name identifier")
		h.metrics.ExternalLogin(providerName, metrics.OutcomeNoIdentifier)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "external login has no identifier"})
		return
	}

	userID, err := h.resolver.Resolve(c.Request.Context(), info)
	switch {
	case errors.Is(err, resolver.ErrNotLinked):
		h.metrics.ExternalLogin(providerName, metrics.OutcomeNotLinked)
		c.JSON(http.StatusForbidden, gin.H{"error": "external login is not linked to a back-office user"})
		return
	case err != nil:
		log.Error("failed to resolve user", zap.Error(err))
		h.metrics.ExternalLogin(providerName, metrics.OutcomeError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	if err := h.startSession(c, userID, info.Login.LoginProvider); err != nil {
		log.Error("failed to create session", zap.Error(err))
		h.metrics.ExternalLogin(providerName, metrics.OutcomeError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	h.metrics.ExternalLogin(providerName, metrics.OutcomeSuccess)
	log.Info("external login succeeded",
		logger.UserID(userID),
		logger.ClientIP(c.ClientIP()),
	)

	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}

// completeLink attaches the external login to the user who started the
// link flow, provided that user is still the one signed in.
func (h *Handler) completeLink(
	c *gin.Context,
	log *zap.Logger,
	providerName string,
	result *auth.AuthenticateResult,
	linkFor string,
) {
	sess := h.currentSession(c)
	if sess == nil || linkFor == "" {
		h.metrics.ExternalLogin(providerName, metrics.OutcomeInvalid)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if result.Properties == nil {
		result.Properties = map[string]string{}
	}
	result.Properties[XsrfKey] = linkFor

	info := auth.ExternalLoginWithXSRF(result, XsrfKey, sess.UserID)
	if info == nil {
		log.Warn("link callback rejected", logger.UserID(sess.UserID))
		h.metrics.ExternalLogin(providerName, metrics.OutcomeInvalid)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "external login could not be linked"})
		return
	}

	err := h.resolver.Link(c.Request.Context(), sess.UserID, info)
	switch {
	case errors.Is(err, resolver.ErrAlreadyLinked):
		h.metrics.ExternalLogin(providerName, metrics.OutcomeInvalid)
		c.JSON(http.StatusConflict, gin.H{"error": "external login is linked to another user"})
		return
	case err != nil:
		log.Error("failed to link external login", zap.Error(err))
		h.metrics.ExternalLogin(providerName, metrics.OutcomeError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to link external login"})
		return
	}

	h.metrics.ExternalLogin(providerName, metrics.OutcomeLinked)
	log.Info("external login linked", logger.UserID(sess.UserID))
	c.JSON(http.StatusOK, gin.H{"status": "linked"})
}

// Providers lists the configured external login providers.
func (h *Handler) Providers(c *gin.Context) {
	type item struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		LoginURL    string `json:"login_url"`
	}

	list := h.providers.List()
	out := make([]item, 0, len(list))
	for _, p := range list {
		out = append(out, item{
			Name:        p.Name(),
			DisplayName: p.DisplayName(),
			LoginURL:    "/oauth/login/" + p.Name(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (h *Handler) Logout(c *gin.Context) {
	cookie, err := c.Request.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		// best-effort
		if err := h.sessionStore.Delete(c.Request.Context(), cookie.Value); err != nil {
			logger.From(c.Request.Context()).Warn("failed to delete session", zap.Error(err))
		}
	}

	session.ClearCookie(c.Writer, h.cookieOptions())

	// idempotent
	c.Status(http.StatusNoContent)
}

func (h *Handler) startSession(c *gin.Context, userID, loginProvider string) error {
	sessionID, err := session.GenerateID()
	if err != nil {
		return err
	}

	now := time.Now()
	expiresAt := now.Add(h.opts.SessionTTL)

	sess := session.Session{
		SessionID:         sessionID,
		UserID:            userID,
		LoginProvider:     loginProvider,
		CreatedAt:         now,
		AbsoluteExpiresAt: expiresAt,
		ExpiresAt:         expiresAt,
	}
	if err := h.sessionStore.Create(c.Request.Context(), sess); err != nil {
		return err
	}

	session.SetCookie(c.Writer, sessionID, expiresAt, h.cookieOptions())
	return nil
}

func (h *Handler) currentSession(c *gin.Context) *session.Session {
	cookie, err := c.Request.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, err := h.sessionStore.Get(c.Request.Context(), cookie.Value)
	if err != nil || sess == nil || time.Now().After(sess.ExpiresAt) {
		return nil
	}
	return sess
}

func (h *Handler) cookieOptions() session.CookieOptions {
	return session.CookieOptions{
		Path:     "/",
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
