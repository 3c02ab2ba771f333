package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/narration"
)

func handleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var statusCode int
	var errResp models.ErrorResponse

	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Code: models.ErrCodeSessionNotFound, Message: "Session not found"}
	case errors.Is(err, models.ErrNoActiveStory):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Code: models.ErrCodeNoActiveStory, Message: "The session has no storybook"}
	case errors.Is(err, models.ErrInvalidTransition):
		statusCode = http.StatusConflict
		errResp = models.ErrorResponse{Code: models.ErrCodeInvalidTransition, Message: err.Error()}
	case errors.Is(err, narration.ErrSuperseded):
		statusCode = http.StatusConflict
		errResp = models.ErrorResponse{Code: models.ErrCodeSuperseded, Message: "Narration was replaced by a newer request"}
	case errors.Is(err, models.ErrInvalidEditTarget):
		statusCode = http.StatusUnprocessableEntity
		errResp = models.ErrorResponse{Code: models.ErrCodeInvalidEditTarget, Message: err.Error()}
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Code: models.ErrCodeValidation, Message: err.Error()}
	case errors.Is(err, models.ErrTransport), errors.Is(err, models.ErrMalformedResponse):
		logger.Warn("Generation backend error", zap.Error(err))
		statusCode = http.StatusBadGateway
		errResp = models.ErrorResponse{Code: models.ErrCodeUpstream, Message: err.Error()}
	default:
		logger.Error("Unhandled internal error", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Code: models.ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
		Code:    models.ErrCodeBadRequest,
		Message: "Invalid request data: " + err.Error(),
	})
}
