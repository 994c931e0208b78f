// This file implements the administrative fleet surface: node
// registration, plan catalog management, and server suspension. All
// routes are guarded by the static operator credential.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/models"
	"github.com/emberhost/ember/internal/store"
	"github.com/emberhost/ember/internal/utils"
)

// NodeCreateRequest registers a fleet host with the control plane. The
// agent token is the node-scoped credential used for both outbound agent
// calls and inbound watchdog authentication; it is accepted here and
// never serialized back out.
type NodeCreateRequest struct {
	Address    string `json:"address" binding:"required"`
	AgentPort  int    `json:"agent_port" binding:"required,min=1,max=65535"`
	AgentToken string `json:"agent_token" binding:"required,min=16"`
	TotalRAMMB int64  `json:"total_ram_mb" binding:"required,min=1024"`
	MaxServers int    `json:"max_servers" binding:"required,min=1"`
}

// PlanCreateRequest adds a purchasable plan to the catalog.
type PlanCreateRequest struct {
	Name     string  `json:"name" binding:"required"`
	Price    float64 `json:"price" binding:"min=0"`
	RAMMB    int64   `json:"ram_mb" binding:"required,min=256"`
	CPULimit int     `json:"cpu_limit" binding:"required,min=1"`
	DiskGB   int     `json:"disk_gb" binding:"required,min=1"`
	Active   bool    `json:"active"`
}

// NodeListResponse represents the HTTP response for fleet listing
// requests.
type NodeListResponse struct {
	Nodes []models.Node `json:"nodes"`
	Count int           `json:"count"`
}

// HandleCreateNode registers a new fleet node.
//
// POST /internal/nodes
func HandleCreateNode(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NodeCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}

		nodeID, err := utils.GenerateID()
		if err != nil {
			logging.Error("Node registration: Failed to generate node ID: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "Failed to generate node ID",
				"reason": "persistence_error",
			})
			return
		}

		node := &models.Node{
			ID:         nodeID,
			Address:    req.Address,
			AgentPort:  req.AgentPort,
			AgentToken: req.AgentToken,
			Status:     models.NodeOnline,
			TotalRAMMB: req.TotalRAMMB,
			MaxServers: req.MaxServers,
		}
		if err := st.CreateNode(node); err != nil {
			logging.Error("Node registration: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "Failed to register node",
				"reason": "persistence_error",
			})
			return
		}

		logging.Success("Node %s registered at %s:%d",
			logging.FormatNodeID(node.ID), node.Address, node.AgentPort)
		c.JSON(http.StatusCreated, node)
	}
}

// HandleListNodes returns the full fleet inventory with capacity ledger
// figures.
//
// GET /internal/nodes
func HandleListNodes(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		nodes, err := st.ListNodes()
		if err != nil {
			logging.Error("Node listing: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "Failed to list nodes",
				"reason": "persistence_error",
			})
			return
		}

		c.JSON(http.StatusOK, NodeListResponse{Nodes: nodes, Count: len(nodes)})
	}
}

// HandleCreatePlan adds a plan to the catalog.
//
// POST /internal/plans
func HandleCreatePlan(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PlanCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}

		planID, err := utils.GenerateID()
		if err != nil {
			logging.Error("Plan creation: Failed to generate plan ID: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "Failed to generate plan ID",
				"reason": "persistence_error",
			})
			return
		}

		plan := &models.Plan{
			ID:       planID,
			Name:     req.Name,
			Price:    req.Price,
			RAMMB:    req.RAMMB,
			CPULimit: req.CPULimit,
			DiskGB:   req.DiskGB,
			Active:   req.Active,
		}
		if err := st.CreatePlan(plan); err != nil {
			logging.Error("Plan creation: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "Failed to create plan",
				"reason": "persistence_error",
			})
			return
		}

		c.JSON(http.StatusCreated, plan)
	}
}

// HandleSuspendServer administratively suspends a server, blocking all
// user power actions until lifted.
//
// POST /internal/servers/:id/suspend
func HandleSuspendServer(mgr *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID := c.Param("id")
		if err := mgr.Suspend(serverID, "admin"); err != nil {
			logging.Warn("Suspension: Server %s: %v",
				logging.FormatServerID(serverID), err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"server_id": serverID,
			"status":    models.StatusSuspended,
		})
	}
}
