package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/mcversion"
)

// HandleVersions serves the cached Minecraft version manifest. The cache
// refreshes itself on a TTL and serves stale data when the upstream
// source is unavailable.
//
// GET /versions
func HandleVersions(cache *mcversion.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		manifest, err := cache.Get()
		if err != nil {
			logging.Warn("Versions: Manifest fetch failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":  "Version manifest unavailable",
				"reason": "upstream_unavailable",
			})
			return
		}
		c.JSON(http.StatusOK, manifest)
	}
}
