package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TokenParser 从访问令牌中解析出玩家 ID
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// ErrMissingAuthHeader 表示请求中没有携带令牌
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// ErrMalformedAuthHeader 表示 Authorization 头不是 "Bearer <token>" 格式
var ErrMalformedAuthHeader = errors.New("malformed Authorization header")

// Auth 返回一个 Gin 中间件，验证令牌并把玩家 ID 写入 "player_id"。
func Auth(parser TokenParser) gin.HandlerFunc {
	if parser == nil {
		panic("TokenParser cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.WithError(err).Warn("Auth middleware: Malformed token format")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		playerID, err := parser.ParseToken(tokenStr)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: Invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("player_id", playerID)
		logrus.WithField("player_id", playerID).Debug("Auth middleware: Player authenticated")
		c.Next()
	}
}

// extractToken 优先读取 Bearer 头；浏览器的 WebSocket 无法设置请求头，
// 因此也接受 ?token= 查询参数。
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMalformedAuthHeader
	}
	return parts[1], nil
}
