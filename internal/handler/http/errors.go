package http

import (
	"errors"
	"net/http"

	"naval-battle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleServiceError 把服务层错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotJoinable),
		errors.Is(err, service.ErrNotYourTurn),
		errors.Is(err, service.ErrNotPlaying),
		errors.Is(err, service.ErrNotPlacing),
		errors.Is(err, service.ErrAlreadyReady),
		errors.Is(err, service.ErrSessionClosed):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidFleet),
		errors.Is(err, service.ErrInvalidCell),
		errors.Is(err, service.ErrInvalidSlot):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrConnectivity):
		logrus.WithError(err).Warn("Room store unreachable")
		ErrorResponse(c, http.StatusServiceUnavailable, "room store unreachable, please retry")
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
