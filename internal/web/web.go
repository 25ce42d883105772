// Package web serves the back-office login page.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/internal/auth/provider"
	"backoffice/internal/logger"
)

const (
	LoginPath  = "/backoffice/login"
	staticPath = "/backoffice/static"
)

//go:embed static
var staticFS embed.FS

var loginTemplate = template.Must(template.ParseFS(staticFS, "static/login.html"))

type providerLink struct {
	DisplayName string
	LoginURL    string
}

type loginPage struct {
	Title     string
	Providers []providerLink
}

// Register mounts the login page and its assets. providers is called per
// request so the page follows the registry the runtime built.
func Register(r gin.IRouter, title string, providers func() *provider.Registry) {
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.StaticFS(staticPath, http.FS(assets))

	r.GET(LoginPath, func(c *gin.Context) {
		page := loginPage{Title: title}
		if reg := providers(); reg != nil {
			for _, p := range reg.List() {
				page.Providers = append(page.Providers, providerLink{
					DisplayName: p.DisplayName(),
					LoginURL:    "/oauth/login/" + p.Name(),
				})
			}
		}

		var buf bytes.Buffer
		if err := loginTemplate.Execute(&buf, page); err != nil {
			logger.From(c.Request.Context()).Error("render login page", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	})
}
