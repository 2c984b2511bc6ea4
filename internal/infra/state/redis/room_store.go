package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"naval-battle/internal/domain"
	"naval-battle/internal/repository"

	"github.com/sirupsen/logrus"
)

// RoomStore 是 repository.RoomStore 的 Redis 实现。
//
// 布局：
//
//	{prefix}room:{id}          Hash   id/status/currentTurn/winner/createdAt
//	{prefix}room:{id}:slot1    Hash   playerId/ready/fleet(JSON)
//	{prefix}room:{id}:slot2    Hash   同上
//	{prefix}room:{id}:attacks  Stream cell/attackerSlot/result/ts，ID 即有序 key
//	{prefix}room:{id}:changes  Pub/Sub 频道，每次写入后发布一条通知
//
// 每次写入和对应的通知在同一个 MULTI/EXEC 中提交，订阅者收到通知后重新读取完整文档。
type RoomStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ repository.RoomStore = (*RoomStore)(nil)

// NewRoomStore 创建 RoomStore 实例
func NewRoomStore(client *redis.Client, keyPrefix string) *RoomStore {
	if client == nil {
		panic("redis client cannot be nil for RoomStore")
	}
	if keyPrefix == "" {
		keyPrefix = "nb:" // 默认前缀 "nb:" (naval battle)
	}
	return &RoomStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---
func (r *RoomStore) roomKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s", r.keyPrefix, roomID)
}

func (r *RoomStore) slotKey(roomID string, slot domain.Slot) string {
	return fmt.Sprintf("%sroom:%s:%s", r.keyPrefix, roomID, slot)
}

func (r *RoomStore) attacksKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:attacks", r.keyPrefix, roomID)
}

func (r *RoomStore) changesChannel(roomID string) string {
	return fmt.Sprintf("%sroom:%s:changes", r.keyPrefix, roomID)
}

const (
	fieldID        = "id"
	fieldCreatedAt = "createdAt"
	fieldCell      = "cell"
	fieldAttacker  = "attackerSlot"
	fieldResult    = "result"
	fieldTimestamp = "ts"
)

// CreateDocument 覆盖写入一个完整的房间文档。
func (r *RoomStore) CreateDocument(ctx context.Context, path string, room *domain.Room) error {
	p, err := repository.ParsePath(path)
	if err != nil {
		return err
	}
	if !p.IsRoom() {
		return fmt.Errorf("%w: create expects a room path, got %q", repository.ErrInvalidPath, path)
	}
	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	values := map[string]interface{}{
		fieldID:        p.RoomID,
		fieldCreatedAt: createdAt.Format(time.RFC3339Nano),
	}
	if room.Status != "" {
		values[repository.FieldStatus] = string(room.Status)
	}
	if room.CurrentTurn != domain.SlotNone {
		values[repository.FieldCurrentTurn] = string(room.CurrentTurn)
	}
	if room.Winner != domain.SlotNone {
		values[repository.FieldWinner] = string(room.Winner)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.roomKey(p.RoomID), r.slotKey(p.RoomID, domain.Slot1), r.slotKey(p.RoomID, domain.Slot2), r.attacksKey(p.RoomID))
	pipe.HSet(ctx, r.roomKey(p.RoomID), values)
	for _, slot := range []domain.Slot{domain.Slot1, domain.Slot2} {
		st := room.SlotState(slot)
		if st == nil {
			continue
		}
		slotValues, err := encodeSlot(st)
		if err != nil {
			return fmt.Errorf("redis: failed to encode %s for room %s: %w", slot, p.RoomID, err)
		}
		pipe.HSet(ctx, r.slotKey(p.RoomID, slot), slotValues)
	}
	for _, a := range room.Attacks {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: r.attacksKey(p.RoomID), Values: encodeAttack(a)})
	}
	pipe.Publish(ctx, r.changesChannel(p.RoomID), "create")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to create room %s: %w", p.RoomID, err)
	}
	return nil
}

// PatchFields 更新房间或座位上的若干字段，nil 值对应 HDEL。
func (r *RoomStore) PatchFields(ctx context.Context, path string, fields repository.Fields) error {
	p, err := repository.ParsePath(path)
	if err != nil {
		return err
	}
	ops, err := repository.ResolveFields(p, fields)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, op := range ops {
		key := r.roomKey(p.RoomID)
		if op.Slot != domain.SlotNone {
			key = r.slotKey(p.RoomID, op.Slot)
		}
		switch {
		case op.Slot != domain.SlotNone && op.Name == "":
			pipe.Del(ctx, key)
		case op.Value == nil:
			pipe.HDel(ctx, key, op.Name)
		default:
			val, err := encodeValue(op)
			if err != nil {
				return fmt.Errorf("redis: failed to encode %s for room %s: %w", op.Name, p.RoomID, err)
			}
			pipe.HSet(ctx, key, op.Name, val)
		}
	}
	// 与实时数据库一致：补丁会隐式创建房间文档
	pipe.HSetNX(ctx, r.roomKey(p.RoomID), fieldID, p.RoomID)
	pipe.Publish(ctx, r.changesChannel(p.RoomID), "patch")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to patch %s: %w", path, err)
	}
	return nil
}

// ReadDocument 读取完整房间文档，房间 Hash 不存在时返回 ErrRoomNotFound。
func (r *RoomStore) ReadDocument(ctx context.Context, path string) (*domain.Room, error) {
	p, err := repository.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, p.RoomID)
}

func (r *RoomStore) read(ctx context.Context, roomID string) (*domain.Room, error) {
	pipe := r.client.Pipeline()
	roomCmd := pipe.HGetAll(ctx, r.roomKey(roomID))
	slot1Cmd := pipe.HGetAll(ctx, r.slotKey(roomID, domain.Slot1))
	slot2Cmd := pipe.HGetAll(ctx, r.slotKey(roomID, domain.Slot2))
	attacksCmd := pipe.XRange(ctx, r.attacksKey(roomID), "-", "+")
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: failed to read room %s: %w", roomID, err)
	}

	fields := roomCmd.Val()
	if len(fields) == 0 {
		return nil, repository.ErrRoomNotFound
	}
	room := &domain.Room{
		ID:          roomID,
		Status:      domain.Status(fields[repository.FieldStatus]),
		CurrentTurn: domain.Slot(fields[repository.FieldCurrentTurn]),
		Winner:      domain.Slot(fields[repository.FieldWinner]),
		Attacks:     []domain.Attack{},
	}
	if ts, ok := fields[fieldCreatedAt]; ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			room.CreatedAt = t
		}
	}
	var err error
	if room.Slot1, err = decodeSlot(slot1Cmd.Val()); err != nil {
		return nil, fmt.Errorf("redis: failed to decode slot1 of room %s: %w", roomID, err)
	}
	if room.Slot2, err = decodeSlot(slot2Cmd.Val()); err != nil {
		return nil, fmt.Errorf("redis: failed to decode slot2 of room %s: %w", roomID, err)
	}
	for _, msg := range attacksCmd.Val() {
		room.Attacks = append(room.Attacks, decodeAttack(msg))
	}
	return room, nil
}

// AppendToList 以 XADD 追加一条攻击记录，返回 Stream ID 作为有序 key。
func (r *RoomStore) AppendToList(ctx context.Context, path string, attack domain.Attack) (string, error) {
	p, err := repository.ParsePath(path)
	if err != nil {
		return "", err
	}
	if !p.IsAttacks() {
		return "", fmt.Errorf("%w: append expects an attacks path, got %q", repository.ErrInvalidPath, path)
	}
	pipe := r.client.TxPipeline()
	addCmd := pipe.XAdd(ctx, &redis.XAddArgs{Stream: r.attacksKey(p.RoomID), Values: encodeAttack(attack)})
	pipe.Publish(ctx, r.changesChannel(p.RoomID), "append")
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis: failed to append attack to room %s: %w", p.RoomID, err)
	}
	return addCmd.Val(), nil
}

// Subscribe 订阅房间变更频道。订阅建立后先投递一次当前文档，
// 之后每收到一条通知就重新读取并投递完整文档。
func (r *RoomStore) Subscribe(ctx context.Context, path string, onChange func(*domain.Room)) (func(), error) {
	p, err := repository.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if onChange == nil {
		return nil, fmt.Errorf("redis: subscribe %s: nil callback", path)
	}
	channel := r.changesChannel(p.RoomID)
	pubsub := r.client.Subscribe(ctx, channel)
	// 等待订阅确认，保证之后的写入不会漏掉
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	log := logrus.WithFields(logrus.Fields{"room_id": p.RoomID, "channel": channel})
	msgs := pubsub.Channel()

	go func() {
		r.deliver(subCtx, p.RoomID, onChange, log)
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				r.deliver(subCtx, p.RoomID, onChange, log)
			}
		}
	}()
	log.Debug("redis: room subscription installed")

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := pubsub.Close(); err != nil {
				log.WithError(err).Warn("redis: failed to close room subscription")
			}
		})
	}, nil
}

func (r *RoomStore) deliver(ctx context.Context, roomID string, onChange func(*domain.Room), log *logrus.Entry) {
	room, err := r.read(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("redis: failed to read room for subscriber")
		return
	}
	if ctx.Err() != nil {
		return
	}
	onChange(room)
}

// --- Encoding Helpers ---

func encodeSlot(st *domain.SlotState) (map[string]interface{}, error) {
	values := map[string]interface{}{
		repository.FieldReady: encodeBool(st.Ready),
	}
	if st.PlayerID != "" {
		values[repository.FieldPlayerID] = st.PlayerID
	}
	if st.Fleet != nil {
		b, err := json.Marshal(st.Fleet)
		if err != nil {
			return nil, err
		}
		values[repository.FieldFleet] = string(b)
	}
	return values, nil
}

func decodeSlot(fields map[string]string) (*domain.SlotState, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	st := &domain.SlotState{
		PlayerID: fields[repository.FieldPlayerID],
		Ready:    fields[repository.FieldReady] == "1",
	}
	if raw, ok := fields[repository.FieldFleet]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &st.Fleet); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func encodeValue(op repository.FieldOp) (interface{}, error) {
	switch v := op.Value.(type) {
	case bool:
		return encodeBool(v), nil
	case domain.Fleet:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case string:
		return v, nil
	}
	return nil, fmt.Errorf("%w: unsupported value %T", repository.ErrInvalidField, op.Value)
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func encodeAttack(a domain.Attack) map[string]interface{} {
	return map[string]interface{}{
		fieldCell:      a.Cell,
		fieldAttacker:  string(a.AttackerSlot),
		fieldResult:    string(a.Result),
		fieldTimestamp: strconv.FormatInt(a.Timestamp, 10),
	}
}

func decodeAttack(msg redis.XMessage) domain.Attack {
	get := func(name string) string {
		s, _ := msg.Values[name].(string)
		return s
	}
	ts, _ := strconv.ParseInt(get(fieldTimestamp), 10, 64)
	return domain.Attack{
		Key:          msg.ID,
		Cell:         get(fieldCell),
		AttackerSlot: domain.Slot(get(fieldAttacker)),
		Result:       domain.AttackResult(get(fieldResult)),
		Timestamp:    ts,
	}
}
