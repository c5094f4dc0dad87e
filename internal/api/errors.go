package api

import (
	"errors"
	"net/http"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/gin-gonic/gin"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// retryAfterSeconds is advertised when the hub or the store is temporarily unavailable
const retryAfterSeconds = "5"

var statusByKind = map[domain.ErrorKind]int{
	domain.KindHubUnreachable:             http.StatusServiceUnavailable,
	domain.KindSettlementNotFound:         http.StatusNotFound,
	domain.KindInvalidSettlementState:     http.StatusBadRequest,
	domain.KindParticipantNotInSettlement: http.StatusForbidden,
	domain.KindNoPositionInCurrency:       http.StatusBadRequest,
	domain.KindAmountMismatch:             http.StatusBadRequest,
	domain.KindCurrencyMismatch:           http.StatusBadRequest,
	domain.KindValidation:                 http.StatusBadRequest,
	domain.KindStoreUnavailable:           http.StatusInternalServerError,
	domain.KindInvalidAPIKey:              http.StatusForbidden,
	domain.KindRateLimited:                http.StatusTooManyRequests,
}

// StatusFor maps an error to its HTTP status and taxonomy code.
func StatusFor(err error) (int, string) {
	var se *domain.SettlementError
	if errors.As(err, &se) {
		if status, ok := statusByKind[se.Kind]; ok {
			return status, string(se.Kind)
		}
	}
	return http.StatusInternalServerError, "InternalError"
}

func abortWithError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	var se *domain.SettlementError
	if errors.As(err, &se) && se.Message != "" {
		msg = se.Message
	}
	if status == http.StatusInternalServerError && code == "InternalError" {
		msg = "internal error"
	}
	if domain.IsRetriable(err) {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: msg})
}
