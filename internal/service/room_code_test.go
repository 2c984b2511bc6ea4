package service

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRoomCode_SkipsBiasedBytes(t *testing.T) {
	// 252..255 落在最后一个不完整的区间，必须丢弃
	src := append([]byte{252, 253, 254, 255, 0, 1, 35, 36, 71, 251}, make([]byte, 2)...)
	code, err := readRoomCode(bytes.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "AB9A99", code)
}

func TestReadRoomCode_ShortSource(t *testing.T) {
	_, err := readRoomCode(bytes.NewReader([]byte{255, 255, 255}))
	assert.Error(t, err)
}

func TestGenerateRoomCode_Alphabet(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateRoomCode()
		require.NoError(t, err)
		require.Len(t, code, roomCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(roomCodeAlphabet, r), "unexpected %q in %s", r, code)
		}
	}
}
