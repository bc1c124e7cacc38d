package handlers

import (
	"errors"
	"net/http"

	"garage-backend/internal/api/middleware"
	"garage-backend/internal/maintenance"
	"garage-backend/internal/repository"
	"garage-backend/internal/services"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// respondError maps a service error to a status code. action completes the
// sentence "Failed to ..." for unexpected errors, whose details stay in the
// log.
func respondError(c *gin.Context, log *logger.Logger, err error, action string) {
	var invalid maintenance.ValidationErrors
	var write *services.WriteError

	switch {
	case errors.As(err, &invalid):
		utils.ValidationErrorResponse(c, invalid)
	case errors.As(err, &write):
		utils.RetryableErrorResponse(c, write.UserMessage())
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid credentials", nil)
	case errors.Is(err, services.ErrUnauthenticated):
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token", nil)
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrRoleNotAllowed):
		utils.ErrorResponse(c, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, repository.ErrVehicleNotFound), errors.Is(err, repository.ErrInvalidID):
		utils.ErrorResponse(c, http.StatusNotFound, "Vehicle not found", nil)
	case errors.Is(err, repository.ErrUserNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "User not found", nil)
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("Failed to " + action)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to "+action, nil)
	}
}

// bindJSON decodes the request body and answers 400 on malformed input.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	return true
}

// actor returns the authenticated caller. Routes using it sit behind
// AuthMiddleware, so a missing actor is answered with 401.
func actor(c *gin.Context) (services.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
	}
	return a, ok
}
