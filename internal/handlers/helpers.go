// internal/handlers/helpers.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/creatorshield-backend/internal/middleware"
	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

// requestActor writes a 401 and returns false when the caller is anonymous.
func requestActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
	}
	return actor, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return false
	}
	return true
}

// windowParam reads a Go duration such as "24h" from the window query.
// A missing value yields zero so services can apply their defaults.
func windowParam(c *gin.Context) (time.Duration, bool) {
	raw := c.Query("window")
	if raw == "" {
		return 0, true
	}
	window, err := time.ParseDuration(raw)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid window", err.Error())
		return 0, false
	}
	return window, true
}
