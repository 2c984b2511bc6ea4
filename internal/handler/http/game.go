package http

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"naval-battle/internal/domain"
	"naval-battle/internal/dto"
	"naval-battle/internal/fleet"
	"naval-battle/internal/grid"
	"naval-battle/internal/hub"
	"naval-battle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GameHandler 封装房间与对局相关的 HTTP 处理逻辑。
// 每个玩家的会话由 Hub 持有，后续请求通过玩家 ID 找到会话。
type GameHandler struct {
	roomService *service.RoomService
	hub         *hub.Hub

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGameHandler 创建 GameHandler 实例
func NewGameHandler(roomService *service.RoomService, h *hub.Hub) *GameHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for GameHandler")
	}
	if h == nil {
		panic("Hub cannot be nil for GameHandler")
	}
	return &GameHandler{
		roomService: roomService,
		hub:         h,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRoom 创建房间，调用者成为 slot1 并开始监听房间
func (h *GameHandler) CreateRoom(c *gin.Context) {
	pid, ok := playerID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("player_id", pid)

	roomID, slot, err := h.roomService.CreateRoom(c.Request.Context(), pid)
	if err != nil {
		logCtx.WithError(err).Error("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}
	if !h.attach(c, pid, roomID, slot) {
		return
	}
	logCtx.WithField("room_id", roomID).Info("Handler.CreateRoom: Room created successfully")
	SuccessResponse(c, http.StatusCreated, dto.RoomResponse{RoomID: roomID, Slot: slot})
}

// JoinRoom 以 slot2 身份加入等待中的房间
func (h *GameHandler) JoinRoom(c *gin.Context) {
	pid, ok := playerID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("player_id", pid)

	var req dto.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: room_id must be 6 letters or digits")
		return
	}
	logCtx = logCtx.WithField("room_id", req.RoomID)

	roomID, slot, err := h.roomService.JoinRoom(c.Request.Context(), req.RoomID, pid)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Failed to join room via service")
		HandleServiceError(c, err)
		return
	}
	if !h.attach(c, pid, roomID, slot) {
		return
	}
	logCtx.Info("Handler.JoinRoom: Player joined room successfully")
	SuccessResponse(c, http.StatusOK, dto.RoomResponse{RoomID: roomID, Slot: slot})
}

// Ready 提交舰队布置并标记就绪
func (h *GameHandler) Ready(c *gin.Context) {
	pid, sess, ok := h.session(c)
	if !ok {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"player_id": pid, "room_id": sess.RoomID()})

	var req dto.ReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.Ready: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}
	f := req.Fleet
	if req.Random {
		var err error
		h.rngMu.Lock()
		f, err = fleet.Random(h.rng)
		h.rngMu.Unlock()
		if err != nil {
			logCtx.WithError(err).Error("Handler.Ready: Failed to generate random fleet")
			HandleServiceError(c, err)
			return
		}
	}
	if err := h.roomService.MarkReady(c.Request.Context(), sess.RoomID(), sess.Slot(), f); err != nil {
		logCtx.WithError(err).Warn("Handler.Ready: Failed to mark ready")
		HandleServiceError(c, err)
		return
	}
	logCtx.Info("Handler.Ready: Fleet placed")
	SuccessResponse(c, http.StatusOK, dto.ReadyResponse{Fleet: f})
}

// Attack 攻击对手的一个格子
func (h *GameHandler) Attack(c *gin.Context) {
	pid, sess, ok := h.session(c)
	if !ok {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"player_id": pid, "room_id": sess.RoomID()})

	var req dto.AttackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.Attack: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: cell is required")
		return
	}
	outcome, applied, err := sess.SubmitAttack(c.Request.Context(), req.Cell)
	if err != nil {
		logCtx.WithError(err).WithField("cell", req.Cell).Warn("Handler.Attack: Attack rejected")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.AttackResultDTO{
		Type:    dto.MessageResult,
		Cell:    grid.DOMID(outcome.Cell),
		Result:  outcome.Result,
		ShipID:  outcome.ShipID,
		Applied: applied,
	})
}

// State 返回玩家当前会话的快照和战损
func (h *GameHandler) State(c *gin.Context) {
	pid, ok := playerID(c)
	if !ok {
		return
	}
	state, ok := h.hub.State(pid)
	if !ok {
		ErrorResponse(c, http.StatusNotFound, "no active room")
		return
	}
	SuccessResponse(c, http.StatusOK, state)
}

// Leave 取消玩家当前会话的订阅
func (h *GameHandler) Leave(c *gin.Context) {
	pid, ok := playerID(c)
	if !ok {
		return
	}
	if !h.hub.Detach(pid) {
		ErrorResponse(c, http.StatusNotFound, "no active room")
		return
	}
	logrus.WithField("player_id", pid).Info("Handler.Leave: Session closed")
	c.Status(http.StatusNoContent)
}

func (h *GameHandler) attach(c *gin.Context, pid, roomID string, slot domain.Slot) bool {
	sess, err := h.roomService.Subscribe(c.Request.Context(), roomID, slot)
	if err != nil {
		logrus.WithFields(logrus.Fields{"player_id": pid, "room_id": roomID}).WithError(err).Error("Handler: Failed to subscribe to room")
		HandleServiceError(c, err)
		return false
	}
	h.hub.Attach(pid, sess)
	return true
}

func (h *GameHandler) session(c *gin.Context) (string, *service.Session, bool) {
	pid, ok := playerID(c)
	if !ok {
		return "", nil, false
	}
	sess, ok := h.hub.Session(pid)
	if !ok {
		ErrorResponse(c, http.StatusConflict, "no active room")
		return "", nil, false
	}
	return pid, sess, true
}
