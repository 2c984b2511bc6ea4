package websocket

import (
	"net/http"

	"naval-battle/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为空或 "*" 时接受任意来源。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection 把已认证玩家的请求升级为 WebSocket 连接。
// 连接只负责推送事件和接收攻击，会话由 HTTP 接口创建。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	playerID := c.GetString("player_id")
	if playerID == "" {
		logrus.Warn("WS Handler: Player ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "player not authenticated"})
		return
	}
	logCtx := logrus.WithField("player_id", playerID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn, playerID)
	registerMsg := hub.HubMessage{
		Type:     "register",
		PlayerID: playerID,
		Client:   client,
	}
	if !h.hub.QueueMessage(registerMsg) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		_ = conn.Close()
		return
	}
	go client.Run()
	logCtx.Debug("WS Handler: Client read/write pumps started")
}
