package http

import (
	"net/http"

	"naval-battle/internal/dto"
	"naval-battle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PlayerHandler 负责匿名玩家身份的签发
type PlayerHandler struct {
	playerService *service.PlayerService
}

// NewPlayerHandler 创建 PlayerHandler 实例
func NewPlayerHandler(playerService *service.PlayerService) *PlayerHandler {
	if playerService == nil {
		panic("PlayerService cannot be nil for PlayerHandler")
	}
	return &PlayerHandler{playerService: playerService}
}

// Create 生成新的玩家 ID 并返回对应的访问令牌
func (h *PlayerHandler) Create(c *gin.Context) {
	id, token, err := h.playerService.NewPlayer()
	if err != nil {
		logrus.WithError(err).Error("Handler.CreatePlayer: Failed to issue player token")
		HandleServiceError(c, err)
		return
	}
	logrus.WithField("player_id", id).Info("Handler.CreatePlayer: Player created")
	SuccessResponse(c, http.StatusCreated, dto.CreatePlayerResponse{PlayerID: id, Token: token})
}
