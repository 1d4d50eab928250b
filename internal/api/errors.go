package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/cycle"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var fe *apperr.FreezeError
	switch {
	case errors.As(err, &fe):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, apperr.ErrSuspended):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrFraudBlocked):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody renders {error, code, details}. Unexpected errors get a generic
// message so causes never leak.
func errorBody(err error) gin.H {
	body := gin.H{"code": apperr.Code(err)}
	if !apperr.IsExpected(err) {
		body["error"] = "internal server error"
		return body
	}
	body["error"] = err.Error()

	var (
		ife *apperr.InsufficientFundsError
		le  *apperr.LimitError
		fe  *apperr.FreezeError
		se  *apperr.SuspendedError
		fre *apperr.FraudError
	)
	switch {
	case errors.As(err, &ife):
		body["details"] = gin.H{"required": ife.Required, "available": ife.Available}
	case errors.As(err, &le):
		body["details"] = gin.H{"action": le.Action, "current": le.Current, "limit": le.Limit}
	case errors.As(err, &fe):
		body["details"] = gin.H{
			"timeUntilActive": int64(fe.Until / time.Second),
			"formatted":       cycle.FormatRemaining(fe.Until),
		}
	case errors.As(err, &se):
		details := gin.H{"reason": se.Reason}
		if se.Until != nil {
			details["until"] = se.Until.UTC()
		}
		body["details"] = details
	case errors.As(err, &fre):
		body["details"] = gin.H{"flags": fre.Flags, "severity": fre.Severity}
	}
	return body
}

// respondError writes err and logs anything unexpected with its cause.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		cause := err.Error()
		var se *apperr.StorageError
		if errors.As(err, &se) {
			cause = se.Cause()
		}
		log.Error().
			Str("request_id", requestID(c)).
			Str("route", c.FullPath()).
			Str("cause", cause).
			Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, errorBody(err))
}
