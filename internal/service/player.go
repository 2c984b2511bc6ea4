package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PlayerService 为匿名玩家分配不透明的 playerId，并签发携带它的 JWT。
type PlayerService struct {
	jwtSecret []byte
	jwtExpiry time.Duration
}

// NewPlayerService 创建 PlayerService 实例。
func NewPlayerService(jwtSecretKey string, jwtExpiryHours int) (*PlayerService, error) {
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24 // 默认 24 小时
	}
	return &PlayerService{
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// NewPlayer 生成新的 playerId 及其 token。
func (s *PlayerService) NewPlayer() (string, string, error) {
	playerID := uuid.NewString()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"player_id": playerID,
		"exp":       now.Add(s.jwtExpiry).Unix(),
		"iat":       now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	logrus.WithField("player_id", playerID).Info("Player registered")
	return playerID, tokenString, nil
}

// ParseToken 校验 token 并返回其中的 playerId。
func (s *PlayerService) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		var validationError *jwt.ValidationError
		if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
			logrus.Debug("Player token expired")
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	playerID, _ := claims["player_id"].(string)
	if _, err := uuid.Parse(playerID); err != nil {
		return "", fmt.Errorf("%w: bad player_id claim", ErrInvalidToken)
	}
	return playerID, nil
}
