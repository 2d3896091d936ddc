// internal/web/favicon.go
package web

import (
    "net/http"

    "github.com/gin-gonic/gin"
)

// Map pin with a status dot
const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32" width="32" height="32">
  <path d="M16 2C10.5 2 6 6.4 6 11.9 6 19.3 16 30 16 30s10-10.7 10-18.1C26 6.4 21.5 2 16 2z" fill="#1d4ed8"/>
  <circle cx="16" cy="12" r="4.5" fill="#22c55e"/>
</svg>`

func (s *Server) serveFavicon(c *gin.Context) {
    c.Header("Cache-Control", "public, max-age=31536000")
    c.Data(http.StatusOK, "image/svg+xml", []byte(faviconSVG))
}
