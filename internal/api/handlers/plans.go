package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/models"
	"github.com/emberhost/ember/internal/store"
)

// PlanListResponse represents the HTTP response for plan catalog
// requests.
type PlanListResponse struct {
	Plans []models.Plan `json:"plans"`
	Count int           `json:"count"`
}

// HandleListPlans returns the purchasable plan catalog.
//
// GET /api/v1/plans
func HandleListPlans(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := st.ListPlans()
		if err != nil {
			logging.Error("Plan listing: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "Failed to list plans",
				"reason": "persistence_error",
			})
			return
		}

		c.JSON(http.StatusOK, PlanListResponse{Plans: plans, Count: len(plans)})
	}
}
