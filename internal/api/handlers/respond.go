package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberhost/ember/internal/lifecycle"
)

// reasonStatus maps stable reason codes onto HTTP statuses. Anything not
// listed here is a persistence failure and surfaces as 500.
var reasonStatus = map[string]int{
	"plan_not_found":            http.StatusNotFound,
	"server_limit_reached":      http.StatusConflict,
	"not_found":                 http.StatusNotFound,
	"server_suspended":          http.StatusForbidden,
	"server_busy":               http.StatusConflict,
	"invalid_status":            http.StatusBadRequest,
	"unauthorized":              http.StatusUnauthorized,
	"no_capacity_available":     http.StatusServiceUnavailable,
	"port_allocation_exhausted": http.StatusConflict,
	"agent_unreachable":         http.StatusBadGateway,
}

// respondError renders a lifecycle/scheduler/agent error as JSON with a
// machine-checkable reason code alongside the human-readable message.
func respondError(c *gin.Context, err error) {
	reason := lifecycle.Reason(err)
	status, ok := reasonStatus[reason]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"error":  err.Error(),
		"reason": reason,
	})
}
