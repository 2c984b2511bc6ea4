package dto

import "naval-battle/internal/domain"

// 服务端推送消息类型
const (
	MessageEvent  = "event"
	MessageState  = "state"
	MessageResult = "attack_result"
	MessageError  = "error"
)

// ClientMessage 是客户端通过 WebSocket 发来的消息，目前只有攻击。
type ClientMessage struct {
	Type string `json:"type" binding:"required,oneof=attack"`
	Cell string `json:"cell"`
}

// EventDTO 是推送给客户端的房间事件
type EventDTO struct {
	Type    string           `json:"type"`
	Event   domain.EventType `json:"event"`
	RoomID  string           `json:"room_id"`
	Slot    domain.Slot      `json:"slot,omitempty"`
	Status  domain.Status    `json:"status,omitempty"`
	Attacks []domain.Attack  `json:"attacks,omitempty"`
	Fresh   []domain.Attack  `json:"fresh,omitempty"`
}

// NewEventDTO 把领域事件转换为推送消息
func NewEventDTO(roomID string, ev domain.Event) EventDTO {
	return EventDTO{
		Type:    MessageEvent,
		Event:   ev.Type,
		RoomID:  roomID,
		Slot:    ev.Slot,
		Status:  ev.Status,
		Attacks: ev.Attacks,
		Fresh:   ev.Fresh,
	}
}

// AttackResultDTO 是一次攻击提交的结果
type AttackResultDTO struct {
	Type    string              `json:"type"`
	Cell    string              `json:"cell"`
	Result  domain.AttackResult `json:"result,omitempty"`
	ShipID  string              `json:"ship_id,omitempty"`
	Applied bool                `json:"applied"`
}

// ErrorDTO 表示发送给客户端的错误消息
type ErrorDTO struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DamageDTO 是战损视图
type DamageDTO struct {
	Hits     []string `json:"hits"`
	Misses   []string `json:"misses"`
	Sunk     []string `json:"sunk"`
	Defeated bool     `json:"defeated"`
}

// StateDTO 是会话当前状态：最近一次快照加上双方战损
type StateDTO struct {
	Type   string       `json:"type"`
	RoomID string       `json:"room_id"`
	Slot   domain.Slot  `json:"slot"`
	Turn   domain.Slot  `json:"turn,omitempty"`
	Room   *domain.Room `json:"room,omitempty"`
	Dealt  DamageDTO    `json:"dealt"`
	Taken  DamageDTO    `json:"taken"`
}

// CreatePlayerResponse 是注册匿名玩家的响应
type CreatePlayerResponse struct {
	PlayerID string `json:"player_id"`
	Token    string `json:"token"`
}

// RoomResponse 是创建或加入房间的响应
type RoomResponse struct {
	RoomID string      `json:"room_id"`
	Slot   domain.Slot `json:"slot"`
}

// JoinRoomRequest 是加入房间的请求
type JoinRoomRequest struct {
	RoomID string `json:"room_id" binding:"required,len=6,alphanum"`
}

// ReadyRequest 是确认布阵的请求：给出 fleet，或 random=true 由服务端随机生成
type ReadyRequest struct {
	Fleet  domain.Fleet `json:"fleet"`
	Random bool         `json:"random"`
}

// ReadyResponse 返回最终写入的舰队
type ReadyResponse struct {
	Fleet domain.Fleet `json:"fleet"`
}

// AttackRequest 是攻击请求
type AttackRequest struct {
	Cell string `json:"cell" binding:"required"`
}
