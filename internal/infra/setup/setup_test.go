package setup

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBConfig_DSN(t *testing.T) {
	cfg := DBConfig{User: "naval", Password: "s3cret", Host: "db", Name: "naval_battle"}
	assert.Equal(t, "naval:s3cret@tcp(db:3306)/naval_battle?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DSN())

	cfg.Port = "3307"
	assert.Contains(t, cfg.DSN(), "@tcp(db:3307)/")
}

func TestInitDB_RequiresConfig(t *testing.T) {
	_, err := InitDB(DBConfig{})
	assert.Error(t, err)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := InitRedis(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	_, err = InitRedis(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestMigrateDB_NilDB(t *testing.T) {
	assert.Error(t, MigrateDB(nil))
}
