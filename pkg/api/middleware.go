package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/metrics"
	"github.com/fleetconf/shepherd/pkg/registry"
	"github.com/fleetconf/shepherd/pkg/storage"
)

// requestMiddleware logs every request and records API metrics keyed by
// the route template, not the raw path.
func (s *Server) requestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(c.Request.Method, path).Observe(elapsed.Seconds())

		event := s.logger.Debug()
		if status >= 500 {
			event = s.logger.Error()
		} else if status >= 400 {
			event = s.logger.Warn()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("request")
	}
}

// problem is the error response body shape.
type problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	title := "Internal Server Error"

	var verr *filter.ValidationError
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		title = "Not Found"
	case errors.Is(err, storage.ErrExists), errors.Is(err, registry.ErrInUse):
		status = http.StatusConflict
		title = "Conflict"
	case errors.Is(err, filter.ErrInvalidCursor),
		errors.As(err, &verr),
		errors.As(err, &fieldErrs):
		status = http.StatusBadRequest
		title = "Bad Request"
	}

	c.JSON(status, problem{Status: status, Title: title, Detail: err.Error()})
}

// badRequest writes a 400 without requiring a typed error.
func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, problem{
		Status: http.StatusBadRequest,
		Title:  "Bad Request",
		Detail: detail,
	})
}
