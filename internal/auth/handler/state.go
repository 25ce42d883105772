package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"backoffice/internal/utils"
)

const (
	stateCookieName = "__oauth_state"
	linkCookieName  = "__oauth_link"
	flowTTL         = 5 * time.Minute

	// linkStatePrefix marks a state issued by the link flow. The state
	// cookie binds it to the browser, so a leftover link cookie never
	// turns a plain sign-in into a link.
	linkStatePrefix = "link."
)

func generateState(c *gin.Context, secure, link bool) (string, error) {
	state, err := utils.RandomString(32)
	if err != nil {
		return "", err
	}
	if link {
		state = linkStatePrefix + state
	}
	setFlowCookie(c, stateCookieName, state, secure)
	return state, nil
}

func isLinkState(state string) bool {
	return strings.HasPrefix(state, linkStatePrefix)
}

func validateState(c *gin.Context) bool {
	stateQuery := c.Query("state")
	if stateQuery == "" {
		return false
	}
	return flowCookie(c, stateCookieName) == stateQuery
}

// setFlowCookie stores a short-lived value for the provider round trip.
func setFlowCookie(c *gin.Context, name, value string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(flowTTL.Seconds()),
	})
}

func clearFlowCookie(c *gin.Context, name string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func flowCookie(c *gin.Context, name string) string {
	cookie, err := c.Request.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
