package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/logging"
)

// HandlePowerAction handles HTTP requests for one power action; the
// action (start, stop, or restart) is fixed per route. The optimistic
// status transition is only applied after the node agent confirms the
// call; the watchdog sync channel later reports the authoritative
// outcome.
//
// POST /api/v1/servers/:id/{start|stop|restart}
func HandlePowerAction(mgr *lifecycle.Manager, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sv, err := mgr.PowerAction(c.GetString("userID"), c.Param("id"), action)
		if err != nil {
			logging.Warn("Power action %s on %s: %v",
				action, logging.FormatServerID(c.Param("id")), err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"server_id": sv.ID,
			"action":    action,
			"status":    sv.Status,
		})
	}
}
