package server

import (
	"net/http"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusOf maps domain errors to HTTP status codes and error codes.
func statusOf(err error) (int, string) {
	var (
		notTrained *errors.ModelNotTrainedError
		unknown    *errors.UnknownCategoryError
		validation *errors.ValidationError
		value      *errors.ValueError
	)
	switch {
	case errors.As(err, &notTrained):
		return http.StatusServiceUnavailable, log.ErrorNotTrained
	case errors.As(err, &unknown):
		return http.StatusUnprocessableEntity, log.ErrorUnknownCategory
	case errors.As(err, &validation), errors.As(err, &value):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, fare.ErrNoRecommendation):
		return http.StatusNotFound, "NO_RECOMMENDATION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", err, "http.path", c.Request.URL.Path)
		msg = "internal error"
	}
	c.JSON(status, errorResponse{Error: msg, Code: code})
}

func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
}
