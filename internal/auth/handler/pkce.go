package handler

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

const pkceCookieName = "__oauth_pkce"

// generatePKCE creates an S256 verifier/challenge pair and keeps the
// verifier in a cookie until the callback.
func generatePKCE(c *gin.Context, secure bool) (verifier string, challenge string) {
	verifier = oauth2.GenerateVerifier()
	challenge = oauth2.S256ChallengeFromVerifier(verifier)
	setFlowCookie(c, pkceCookieName, verifier, secure)
	return verifier, challenge
}

func getPKCEVerifier(c *gin.Context) string {
	return flowCookie(c, pkceCookieName)
}
