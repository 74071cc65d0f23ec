package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/graph"
	"prompt-studio/backend/internal/structure"
	"prompt-studio/backend/internal/workflow"
	apperrors "prompt-studio/backend/pkg/errors"
)

// statusFor maps a domain error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrPromptNotFound),
		errors.Is(err, structure.ErrNodeNotFound),
		errors.Is(err, workflow.ErrParentNotFound),
		errors.Is(err, errSessionNotFound),
		apperrors.IsNotFound(err):
		return http.StatusNotFound

	case errors.Is(err, structure.ErrRootNotDetachable),
		errors.Is(err, structure.ErrNodeExists),
		errors.Is(err, graph.ErrPromptExists):
		return http.StatusConflict

	case errors.Is(err, structure.ErrClosed):
		return http.StatusGone

	case apperrors.IsErrorType(err, apperrors.ErrorTypeValidation),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, structure.ErrInvalidEdge),
		errors.Is(err, structure.ErrUnknownAction),
		errors.Is(err, graph.ErrParentNotFound),
		errors.Is(err, graph.ErrCycle):
		return http.StatusBadRequest

	case apperrors.IsErrorType(err, apperrors.ErrorTypeStructuralWrite),
		apperrors.IsErrorType(err, apperrors.ErrorTypeInitialization),
		apperrors.IsErrorType(err, apperrors.ErrorTypeRemote):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// abortWithError writes the error response; server side failures are logged
func abortWithError(c *gin.Context, log *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "details": err.Error()})
}
