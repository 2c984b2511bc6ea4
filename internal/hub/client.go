package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个玩家的一条 WebSocket 连接。同一玩家可以有多条连接。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	playerID string
	send     chan []byte
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, playerID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		playerID: playerID,
		send:     make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// PlayerID 返回连接所属玩家
func (c *Client) PlayerID() string { return c.playerID }

// ReadPump 将消息从 WebSocket 连接泵送到 Hub。
func (c *Client) ReadPump() {
	logCtx := logrus.WithField("player_id", c.playerID)
	defer func() {
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", PlayerID: c.playerID, Client: c}:
		case <-time.After(1 * time.Second):
			logCtx.Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logCtx.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.hub.QueueMessage(HubMessage{
			Type:     "attack",
			PlayerID: c.playerID,
			Client:   c,
			RawData:  message,
		})
	}
}

// WritePump 将消息从 send 通道泵送到 WebSocket 连接，并定期发送 Ping。
func (c *Client) WritePump() {
	logCtx := logrus.WithField("player_id", c.playerID)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 在注销时关闭了 send
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
