package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// playerID 取出 Auth 中间件写入的玩家 ID，缺失时直接写回 401
func playerID(c *gin.Context) (string, bool) {
	id := c.GetString("player_id")
	if id == "" {
		logrus.WithField("path", c.FullPath()).Warn("Player ID not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "player not authenticated")
		return "", false
	}
	return id, true
}
