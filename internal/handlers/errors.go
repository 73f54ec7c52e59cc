// internal/handlers/errors.go
package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

// respondError maps the service error taxonomy onto the response envelope.
func respondError(c *gin.Context, err error) {
	var ve *apperrors.ValidationError

	switch {
	case errors.As(err, &ve):
		utils.ValidationErrorResponse(c, ve.Message, ve.Fields)
	case errors.Is(err, apperrors.ErrNotFound):
		utils.NotFoundResponse(c, err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		utils.ForbiddenResponse(c, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		utils.ConflictResponse(c, err.Error())
	case apperrors.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Warn("Dependency unavailable")
		utils.ServiceUnavailableResponse(c, "")
	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled error")
		utils.InternalErrorResponse(c, "")
	}
	c.Error(err)
}

// callerID returns the authenticated caller or writes a 401.
func callerID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return id, ok
}

// pathID parses a uuid route parameter or writes a 400.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
