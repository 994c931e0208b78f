// Package handlers provides HTTP request handlers for the Ember API server.
//
// This file implements the user-facing game-server lifecycle endpoints:
// creation, listing, inspection, resize, and deletion. Handlers validate
// request shape at the boundary and delegate allocation and state-machine
// decisions to the lifecycle manager, translating its error kinds into
// HTTP statuses with stable reason codes.
//
// SERVER LIFECYCLE ENDPOINTS:
//
//   - POST   /api/v1/servers: Provision a new game server
//   - GET    /api/v1/servers: List the caller's servers
//   - GET    /api/v1/servers/{id}: Get detailed server information
//   - DELETE /api/v1/servers/{id}: Deprovision a server
//   - POST   /api/v1/servers/{id}/resize: Move a server to another plan
//   - GET    /api/v1/servers/{id}/port-check: Probe fleet-wide port usage
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/emberhost/ember/internal/config"
	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/models"
	"github.com/emberhost/ember/internal/names"
	"github.com/emberhost/ember/internal/validate"
)

// ServerCreateRequest represents the HTTP request payload for provisioning
// a new game server. Name, version, type, and port are all optional; the
// plan is the only required field.
type ServerCreateRequest struct {
	Name       string `json:"name"`                       // Server name (auto-generated if not provided)
	PlanID     string `json:"plan_id" binding:"required"` // Plan to provision against
	MCVersion  string `json:"mc_version"`                 // Minecraft version (defaults to platform default)
	ServerType string `json:"server_type"`                // Server type (defaults to vanilla)
	Port       int    `json:"port"`                       // Requested game port (0 = allocate)
}

// ServerListResponse represents the HTTP response for server listing
// requests.
type ServerListResponse struct {
	Servers []models.Server `json:"servers"`
	Count   int             `json:"count"`
}

// ServerResizeRequest represents the HTTP request payload for moving a
// server to a different plan.
type ServerResizeRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// PortCheckResponse reports whether a game port is already claimed by any
// server in the fleet.
type PortCheckResponse struct {
	Port  int  `json:"port"`
	InUse bool `json:"in_use"`
}

// HandleCreateServer handles HTTP requests for provisioning new game
// servers. Validates the request shape, fills defaults, and delegates the
// capacity-aware create flow to the lifecycle manager.
//
// POST /api/v1/servers
func HandleCreateServer(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ServerCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logging.Warn("Server creation: Invalid request body: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}

		// Auto-generate server name if not provided
		if req.Name == "" {
			req.Name = names.Generate()
			logging.Info("Auto-generated server name: %s", req.Name)
		}
		if err := validate.ServerName(req.Name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid server name",
				"details": err.Error(),
			})
			return
		}

		if req.ServerType == "" {
			req.ServerType = models.ServerTypeVanilla
		}
		if !models.ValidServerTypes[req.ServerType] {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid server type",
				"details": "unknown server type: " + req.ServerType,
			})
			return
		}

		if req.MCVersion == "" {
			req.MCVersion = config.DefaultMinecraftVersion
		}

		if req.Port != 0 {
			if err := validate.GamePort(req.Port); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":   "Invalid game port",
					"details": err.Error(),
				})
				return
			}
		}

		userID := c.GetString("userID")
		sv, err := mgr.CreateServer(userID, lifecycle.CreateParams{
			Name:       req.Name,
			PlanID:     req.PlanID,
			MCVersion:  req.MCVersion,
			ServerType: req.ServerType,
			Port:       req.Port,
		})
		if err != nil {
			logging.Warn("Server creation: %v", err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, sv)
	}
}

// HandleListServers handles HTTP requests for listing the caller's game
// servers.
//
// GET /api/v1/servers
func HandleListServers(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		servers, err := mgr.ListServers(c.GetString("userID"))
		if err != nil {
			logging.Error("Server listing: %v", err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, ServerListResponse{
			Servers: servers,
			Count:   len(servers),
		})
	}
}

// HandleGetServer handles HTTP requests for fetching a single server.
// Absence and foreign ownership are indistinguishable 404s.
//
// GET /api/v1/servers/:id
func HandleGetServer(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sv, err := mgr.GetServer(c.GetString("userID"), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sv)
	}
}

// HandleDeleteServer handles HTTP requests for deprovisioning a server.
// Deletion is refused while the server is running or starting.
//
// DELETE /api/v1/servers/:id
func HandleDeleteServer(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID := c.Param("id")
		if err := mgr.Delete(c.GetString("userID"), serverID); err != nil {
			logging.Warn("Server deletion: %v", err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"server_id": serverID,
			"status":    "deleted",
		})
	}
}

// HandleResizeServer handles HTTP requests for moving a server onto a
// different plan.
//
// POST /api/v1/servers/:id/resize
func HandleResizeServer(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ServerResizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}

		sv, err := mgr.Resize(c.GetString("userID"), c.Param("id"), req.PlanID)
		if err != nil {
			logging.Warn("Server resize: %v", err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, sv)
	}
}

// HandlePortCheck handles HTTP requests probing whether a port is already
// claimed anywhere in the fleet, for client-side pre-validation. Advisory
// only: the create flow remains the authority on port allocation.
//
// GET /api/v1/servers/port-check?port=25565
func HandlePortCheck(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		port, err := strconv.Atoi(c.Query("port"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid port parameter",
				"details": "port must be an integer",
			})
			return
		}
		if err := validate.GamePort(port); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid game port",
				"details": err.Error(),
			})
			return
		}

		inUse, err := mgr.Store().PortInUseAnywhere(port)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, PortCheckResponse{Port: port, InUse: inUse})
	}
}
