package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"naval-battle/internal/domain"
)

// RoomStore 是对外部复制型键值存储的薄封装。
// 存储保证每个写入最终都能被订阅者看到，但不保证只投递一次，
// 也不保证一次 PatchFields 中的多个字段被原子地观察到。
type RoomStore interface {
	// CreateDocument 在 rooms/{roomId} 写入一个全新的房间文档（覆盖同名文档）。
	CreateDocument(ctx context.Context, path string, room *domain.Room) error

	// PatchFields 更新 rooms/{roomId} 或 rooms/{roomId}/{slot} 下的若干字段。
	// 值为 nil 表示清除该字段。房间路径上可用 "slot2/playerId" 的形式寻址座位字段。
	PatchFields(ctx context.Context, path string, fields Fields) error

	// ReadDocument 读取完整房间文档，不存在时返回 ErrNotFound。
	// Attacks 按存储生成的 key 升序排列。
	ReadDocument(ctx context.Context, path string) (*domain.Room, error)

	// AppendToList 向 rooms/{roomId}/attacks 追加一条记录，返回存储生成的有序 key。
	AppendToList(ctx context.Context, path string, attack domain.Attack) (string, error)

	// Subscribe 安装快照监听：立即投递一次当前文档，之后每次写入后再投递完整文档。
	// 返回的取消函数可重复调用。
	Subscribe(ctx context.Context, path string, onChange func(*domain.Room)) (func(), error)
}

// Fields 是 PatchFields 的字段集合。
type Fields map[string]any

// 字段名
const (
	FieldStatus      = "status"
	FieldCurrentTurn = "currentTurn"
	FieldWinner      = "winner"
	FieldPlayerID    = "playerId"
	FieldReady       = "ready"
	FieldFleet       = "fleet"
)

const (
	roomsRoot   = "rooms"
	attacksNode = "attacks"
)

// Path 是解析后的文档路径。Node 为空表示房间本身，
// 否则为 "slot1"、"slot2" 或 "attacks"。
type Path struct {
	RoomID string
	Node   string
}

// RoomPath 返回 rooms/{roomId}。
func RoomPath(roomID string) string { return roomsRoot + "/" + roomID }

// SlotPath 返回 rooms/{roomId}/{slot}。
func SlotPath(roomID string, slot domain.Slot) string {
	return RoomPath(roomID) + "/" + string(slot)
}

// AttacksPath 返回 rooms/{roomId}/attacks。
func AttacksPath(roomID string) string { return RoomPath(roomID) + "/" + attacksNode }

// SlotField 返回房间路径上寻址座位字段的名字，如 "slot2/playerId"。
func SlotField(slot domain.Slot, field string) string { return string(slot) + "/" + field }

// ParsePath 解析文档路径。
func ParsePath(p string) (Path, error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != roomsRoot || parts[1] == "" {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	out := Path{RoomID: parts[1]}
	if len(parts) == 3 {
		node := parts[2]
		if node != attacksNode && !domain.Slot(node).Valid() {
			return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
		out.Node = node
	}
	return out, nil
}

// IsRoom 判断路径是否指向房间文档本身。
func (p Path) IsRoom() bool { return p.Node == "" }

// IsAttacks 判断路径是否指向 attacks 列表。
func (p Path) IsAttacks() bool { return p.Node == attacksNode }

// Slot 返回路径指向的座位；非座位路径返回 SlotNone。
func (p Path) Slot() domain.Slot {
	if s := domain.Slot(p.Node); s.Valid() {
		return s
	}
	return domain.SlotNone
}

// FieldOp 是一次规范化后的字段写入。Slot 为空表示房间级字段。
// Value 为 nil 表示清除；否则 status/currentTurn/winner/playerId 为 string，
// ready 为 bool，fleet 为 domain.Fleet。Name 为空且 Value 为 nil 表示清除整个座位。
type FieldOp struct {
	Slot  domain.Slot
	Name  string
	Value any
}

// ResolveFields 把 PatchFields 的参数规范化为按 (Slot, Name) 排序的操作列表，
// 各存储实现共享这一套字段语义。
func ResolveFields(p Path, fields Fields) ([]FieldOp, error) {
	if p.IsAttacks() {
		return nil, fmt.Errorf("%w: attacks list cannot be patched", ErrInvalidPath)
	}
	ops := make([]FieldOp, 0, len(fields))
	for key, val := range fields {
		slot := p.Slot()
		name := key
		if p.IsRoom() {
			if s, rest, ok := strings.Cut(key, "/"); ok {
				slot, name = domain.Slot(s), rest
				if !slot.Valid() {
					return nil, fmt.Errorf("%w: %q", ErrInvalidField, key)
				}
			} else if domain.Slot(key).Valid() {
				// 整个座位只允许清除
				if val != nil {
					return nil, fmt.Errorf("%w: %q can only be cleared", ErrInvalidField, key)
				}
				ops = append(ops, FieldOp{Slot: domain.Slot(key)})
				continue
			}
		}
		op, err := resolveValue(slot, name, val)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Slot != ops[j].Slot {
			return ops[i].Slot < ops[j].Slot
		}
		return ops[i].Name < ops[j].Name
	})
	return ops, nil
}

func resolveValue(slot domain.Slot, name string, val any) (FieldOp, error) {
	op := FieldOp{Slot: slot, Name: name}
	bad := func() (FieldOp, error) {
		return FieldOp{}, fmt.Errorf("%w: %q=%v (%T)", ErrInvalidField, name, val, val)
	}
	if slot == domain.SlotNone {
		switch name {
		case FieldStatus, FieldCurrentTurn, FieldWinner:
		default:
			return bad()
		}
	} else {
		switch name {
		case FieldPlayerID, FieldReady, FieldFleet:
		default:
			return bad()
		}
	}
	if val == nil {
		return op, nil
	}
	switch name {
	case FieldReady:
		b, ok := val.(bool)
		if !ok {
			return bad()
		}
		op.Value = b
	case FieldFleet:
		f, ok := val.(domain.Fleet)
		if !ok {
			return bad()
		}
		op.Value = f.Clone()
	default:
		s, ok := stringValue(val)
		if !ok {
			return bad()
		}
		if s == "" {
			return op, nil
		}
		op.Value = s
	}
	return op, nil
}

func stringValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case domain.Status:
		return string(x), true
	case domain.Slot:
		return string(x), true
	}
	return "", false
}

// ApplyFields 把规范化后的操作应用到内存中的房间文档上。
func ApplyFields(room *domain.Room, ops []FieldOp) {
	for _, op := range ops {
		if op.Slot == domain.SlotNone {
			s, _ := op.Value.(string)
			switch op.Name {
			case FieldStatus:
				room.Status = domain.Status(s)
			case FieldCurrentTurn:
				room.CurrentTurn = domain.Slot(s)
			case FieldWinner:
				room.Winner = domain.Slot(s)
			}
			continue
		}
		if op.Name == "" {
			setSlot(room, op.Slot, nil)
			continue
		}
		st := room.SlotState(op.Slot)
		if st == nil {
			st = &domain.SlotState{}
			setSlot(room, op.Slot, st)
		}
		switch op.Name {
		case FieldPlayerID:
			st.PlayerID, _ = op.Value.(string)
		case FieldReady:
			st.Ready, _ = op.Value.(bool)
		case FieldFleet:
			st.Fleet, _ = op.Value.(domain.Fleet)
		}
	}
}

func setSlot(room *domain.Room, slot domain.Slot, st *domain.SlotState) {
	switch slot {
	case domain.Slot1:
		room.Slot1 = st
	case domain.Slot2:
		room.Slot2 = st
	}
}
