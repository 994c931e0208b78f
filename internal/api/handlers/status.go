package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emberhost/ember/internal/lifecycle"
)

// StatusSyncRequest is the watchdog callback payload reporting observed
// container state, optionally with the container-internal address.
type StatusSyncRequest struct {
	Status string `json:"status" binding:"required"`
	LXCIP  string `json:"lxc_ip"`
}

// HandleStatusSync receives authoritative state reports from node
// watchdogs, authenticated by the node-scoped bearer credential. This is
// the only channel for the installing->running, installing->error and
// stopping->stopped transitions.
//
// Credential failures are deliberately terse to avoid oracle leakage.
//
// POST /internal/servers/:id/status
func HandleStatusSync(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req StatusSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}

		err := mgr.ApplyStatusSync(token, c.Param("id"), req.Status, req.LXCIP)
		if err != nil {
			// Terse on credential failures, reasoned on the rest.
			if lifecycle.Reason(err) == "unauthorized" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "applied"})
	}
}
