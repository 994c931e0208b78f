// This file implements the read/write passthrough endpoints that relay
// per-server data from node agents: live resource metrics and the
// server.properties document. The control plane never interprets these
// payloads; it authenticates the caller, resolves the owning node, and
// relays bytes.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberhost/ember/internal/agent"
	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/logging"
)

// maxPropertiesBytes bounds the server.properties upload size.
const maxPropertiesBytes = 64 * 1024

// respondProxyError renders a relay failure. Agent unreachability on the
// passthrough endpoints is a temporary condition, so it maps to 503
// rather than the lifecycle surface's 502.
func respondProxyError(c *gin.Context, err error) {
	if errors.Is(err, agent.ErrAgentUnreachable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "Node agent unavailable",
			"reason": "agent_unreachable",
		})
		return
	}
	respondError(c, err)
}

// HandleServerMetrics relays live resource metrics from the owning node's
// agent.
//
// GET /api/v1/servers/:id/metrics
func HandleServerMetrics(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sv, err := mgr.GetServer(c.GetString("userID"), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		gw, err := mgr.GatewayForServer(sv)
		if err != nil {
			respondProxyError(c, err)
			return
		}
		body, err := gw.GetMetrics(sv.ID)
		if err != nil {
			logging.Warn("Metrics relay: server %s: %v", logging.FormatServerID(sv.ID), err)
			respondProxyError(c, err)
			return
		}

		c.Data(http.StatusOK, "application/json", body)
	}
}

// HandleGetProperties relays the server.properties document from the
// owning node's agent.
//
// GET /api/v1/servers/:id/properties
func HandleGetProperties(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sv, err := mgr.GetServer(c.GetString("userID"), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		gw, err := mgr.GatewayForServer(sv)
		if err != nil {
			respondProxyError(c, err)
			return
		}
		body, err := gw.GetProperties(sv.ID)
		if err != nil {
			logging.Warn("Properties relay: server %s: %v", logging.FormatServerID(sv.ID), err)
			respondProxyError(c, err)
			return
		}

		c.Data(http.StatusOK, "application/json", body)
	}
}

// HandlePutProperties relays a server.properties update to the owning
// node's agent.
//
// PUT /api/v1/servers/:id/properties
func HandlePutProperties(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sv, err := mgr.GetServer(c.GetString("userID"), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPropertiesBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}

		gw, err := mgr.GatewayForServer(sv)
		if err != nil {
			respondProxyError(c, err)
			return
		}
		if err := gw.PutProperties(sv.ID, body); err != nil {
			logging.Warn("Properties update: server %s: %v", logging.FormatServerID(sv.ID), err)
			respondProxyError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"server_id": sv.ID,
			"status":    "updated",
		})
	}
}
