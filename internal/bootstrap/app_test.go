package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"naval-battle/internal/domain"
	"naval-battle/internal/dto"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("RATE_LIMIT_WINDOW", "2s")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "nb:", cfg.KeyPrefix)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, 2*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 24, cfg.JWTExpiryHours)
	assert.False(t, cfg.ArchiveEnabled())

	t.Setenv("DB_HOST", "db")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.ArchiveEnabled())
	assert.Equal(t, "db", cfg.DB().Host)
}

func TestLoadConfig_Required(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("JWT_SECRET", "secret")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func call(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newPlayer(t *testing.T, h http.Handler) dto.CreatePlayerResponse {
	t.Helper()
	w := call(t, h, http.MethodPost, "/api/players", "", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p dto.CreatePlayerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestBuild_RoomFlowOverRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	cfg := &Config{
		RedisAddr:         mr.Addr(),
		KeyPrefix:         "nb:",
		JWTSecret:         "secret",
		JWTExpiryHours:    1,
		ServerPort:        "0",
		LogLevel:          "error",
		AppEnv:            "test",
		RateLimitMax:      1000,
		RateLimitWindow:   time.Second,
		CORSAllowedOrigin: "http://localhost:3000",
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	app, err := Build(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Nil(t, app.AsynqServer)
	defer app.Shutdown()
	h := app.HttpServer.Handler

	w := call(t, h, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(t, h, http.MethodOptions, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = call(t, h, http.MethodPost, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	p1, p2 := newPlayer(t, h), newPlayer(t, h)
	w = call(t, h, http.MethodPost, "/api/rooms", p1.Token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created dto.RoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = call(t, h, http.MethodPost, "/api/rooms/join", p2.Token, dto.JoinRoomRequest{RoomID: created.RoomID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, p := range []dto.CreatePlayerResponse{p1, p2} {
		w = call(t, h, http.MethodPost, "/api/rooms/ready", p.Token, dto.ReadyRequest{Random: true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	require.Eventually(t, func() bool {
		st, ok := app.Hub.State(p2.PlayerID)
		return ok && st.Room != nil && st.Room.Status == domain.StatusPlaying && st.Turn == domain.Slot1
	}, 3*time.Second, 10*time.Millisecond)

	w = call(t, h, http.MethodPost, "/api/rooms/attack", p1.Token, dto.AttackRequest{Cell: "E5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		st, ok := app.Hub.State(p2.PlayerID)
		return ok && st.Room != nil && len(st.Room.Attacks) == 1
	}, 3*time.Second, 10*time.Millisecond)
}
