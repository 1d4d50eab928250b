package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// RequestID tags every request with an id, reusing the caller's if given.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// Logger logs one line per request and records HTTP metrics.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("request_id", requestID(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// Recovery turns a panic into a 500 and logs it.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("request_id", requestID(c)).
					Str("route", c.FullPath()).
					Msg("Recovered from panic in handler")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal_error"})
			}
		}()
		c.Next()
	}
}
