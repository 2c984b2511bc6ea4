package service

import (
	"errors"
	"fmt"

	"naval-battle/internal/repository"
)

var (
	ErrNotFound      = errors.New("room not found")
	ErrNotJoinable   = errors.New("room is full or no longer waiting for players")
	ErrConnectivity  = errors.New("room store unreachable")
	ErrInvalidFleet  = errors.New("invalid fleet")
	ErrInvalidCell   = errors.New("invalid cell")
	ErrInvalidSlot   = errors.New("invalid slot")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrNotPlaying    = errors.New("match is not in progress")
	ErrNotPlacing    = errors.New("room is not in the placement phase")
	ErrAlreadyReady  = errors.New("fleet already confirmed")
	ErrSessionClosed = errors.New("session closed")
	ErrInvalidToken  = errors.New("invalid player token")
)

// mapRepoError 将存储层错误映射为服务层错误。
// 除 NotFound 以外的存储错误都视为连接问题，保留原始错误供日志使用，不做重试。
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrConnectivity, err)
}
