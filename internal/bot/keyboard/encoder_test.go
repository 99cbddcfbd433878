package keyboard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvelay/daily-tasks-bot/internal/bot/keyboard"
)

func TestEncodeCallback(t *testing.T) {
	got, err := keyboard.EncodeCallback(keyboard.CallbackBuy, "pack1")
	require.NoError(t, err)
	assert.Equal(t, "buy:pack1", got)

	got, err = keyboard.EncodeCallback("shop", "")
	require.NoError(t, err)
	assert.Equal(t, "shop", got)
}

func TestEncodeCallback_LimitCountsBytes(t *testing.T) {
	// "buy:" plus 30 two-byte runes is 64 bytes, one more rune crosses the limit.
	fits := strings.Repeat("ж", 30)
	_, err := keyboard.EncodeCallback(keyboard.CallbackBuy, fits)
	require.NoError(t, err)

	_, err = keyboard.EncodeCallback(keyboard.CallbackBuy, fits+"ж")
	assert.Error(t, err)
}

func TestDecodeCallback(t *testing.T) {
	cases := []struct {
		input      string
		wantUnique string
		wantData   string
	}{
		{input: "buy:pack3", wantUnique: "buy", wantData: "pack3"},
		{input: "shop", wantUnique: "shop"},
		{input: "buy:pack:promo", wantUnique: "buy", wantData: "pack:promo"},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			unique, data, err := keyboard.DecodeCallback(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.wantUnique, unique)
			assert.Equal(t, tc.wantData, data)
		})
	}

	_, _, err := keyboard.DecodeCallback("")
	assert.Error(t, err)
}

func TestCallbackRoundTrip(t *testing.T) {
	encoded, err := keyboard.EncodeCallback(keyboard.CallbackBuy, "pack2")
	require.NoError(t, err)

	unique, data, err := keyboard.DecodeCallback(encoded)
	require.NoError(t, err)
	assert.Equal(t, keyboard.CallbackBuy, unique)
	assert.Equal(t, "pack2", data)
}
