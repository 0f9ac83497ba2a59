package handler

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// BannerPath is where the embeddable banner script is served from.
const BannerPath = "/static/banner.min.js"

// IndexPage is the data rendered into the index template.
type IndexPage struct {
	Service   string
	Version   string
	BannerURL string
}

// Index renders the landing page that embeds the banner script.
func Index(service, version string) gin.HandlerFunc {
	page := IndexPage{Service: service, Version: version, BannerURL: BannerPath}
	return func(c *gin.Context) {
		c.Render(http.StatusOK, render.HTML{Template: indexTemplate, Name: "index.html", Data: page})
	}
}
