package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"deviceguard/internal/middleware"
	"deviceguard/pkg/domain"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotRegistered, domain.KindInviteInvalid:
		return http.StatusNotFound
	case domain.KindInviteUsed, domain.KindOperationInProgress:
		return http.StatusConflict
	case domain.KindInviteExpired:
		return http.StatusGone
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindCodeInvalid:
		return http.StatusBadRequest
	case domain.KindCodeExpired:
		return http.StatusUnprocessableEntity
	case domain.KindDeviceBlocked:
		return http.StatusForbidden
	case domain.KindDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(c *gin.Context, err error) {
	e := domain.AsError(err)
	if e.Kind == domain.KindRateLimited {
		c.Header("Retry-After", strconv.Itoa(max(e.RetryAfterSeconds, 1)))
	}
	c.AbortWithStatusJSON(statusOf(e.Kind), domain.ErrorResponse{Error: e})
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, domain.NewError(domain.KindInvalidInput, "%s", msg))
}

// moderatorFrom reads the token subject set by AuthMiddleware.
func moderatorFrom(c *gin.Context) string {
	v, _ := c.Get(middleware.CtxModerator)
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
