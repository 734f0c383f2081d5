package handlers

import (
	"net/http"

	"example.com/admissions/services/pipeline/internal/lifecycle"
	"example.com/admissions/services/pipeline/internal/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// respondError maps domain errors onto HTTP statuses. Transition table
// rejections and concurrent edits surface as conflicts; unmet guard
// preconditions as unprocessable requests.
func respondError(c *gin.Context, err error) {
	var invalid *lifecycle.InvalidTransitionError
	var guard *lifecycle.GuardFailedError
	var configured *lifecycle.AlreadyConfiguredError
	var finalized *lifecycle.AlreadyFinalizedError

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{
			"error":          invalid.Error(),
			"event":          string(invalid.Event),
			"current_status": string(invalid.CurrentStatus),
		})
	case errors.As(err, &configured):
		c.JSON(http.StatusConflict, gin.H{"error": configured.Error(), "stage": string(configured.Stage)})
	case errors.As(err, &finalized):
		c.JSON(http.StatusConflict, gin.H{"error": finalized.Error()})
	case errors.As(err, &guard):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": guard.Error(), "event": string(guard.Event)})
	case errors.Is(err, repositories.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "application was modified concurrently, retry"})
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, lifecycle.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
