package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/models"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Seats   []string `json:"seats,omitempty"`
}

// MessageResponse is the body of requests that only report success
type MessageResponse struct {
	Message string `json:"message"`
}

var statusByKind = map[models.ErrorKind]int{
	models.KindValidation:           http.StatusBadRequest,
	models.KindNotFound:             http.StatusNotFound,
	models.KindSeatUnavailable:      http.StatusBadRequest,
	models.KindInsufficientCapacity: http.StatusBadRequest,
	models.KindAlreadyCancelled:     http.StatusBadRequest,
	models.KindForbidden:            http.StatusForbidden,
	models.KindUnauthenticated:      http.StatusUnauthorized,
}

// respondError writes err as an ErrorResponse. Errors that are not an
// AppError, and internal ones, are logged and reported without detail.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		if status, ok := statusByKind[appErr.Kind]; ok {
			c.JSON(status, ErrorResponse{
				Error:   string(appErr.Kind),
				Message: appErr.Message,
				Seats:   appErr.Seats,
			})
			return
		}
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error("Request failed")
	_ = c.Error(err)

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   string(models.KindInternal),
		Message: "Internal server error",
	})
}

func respondInvalidBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   string(models.KindValidation),
		Message: "Invalid request body",
	})
}

// parseIDParam reads a UUID path parameter, answering 400 when malformed
func parseIDParam(c *gin.Context, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(models.KindValidation),
			Message: "Invalid " + resource + " ID",
		})
		return uuid.Nil, false
	}
	return id, true
}
