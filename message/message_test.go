package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("typed object", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"PING","seq":1}`))
		require.NoError(t, err)
		assert.Equal(t, "PING", msg.Type)
		assert.Equal(t, float64(1), msg.Data["seq"])
	})

	t.Run("object without type field decodes with empty type", func(t *testing.T) {
		msg, err := Decode([]byte(`{"a":{"b":1}}`))
		require.NoError(t, err)
		assert.Empty(t, msg.Type)
		nested, ok := msg.Data["a"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1), nested["b"])
	})

	t.Run("non-string type field is ignored", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":7}`))
		require.NoError(t, err)
		assert.Empty(t, msg.Type)
	})

	t.Run("invalid json fails", func(t *testing.T) {
		_, err := Decode([]byte(`{not json}`))
		assert.Error(t, err)
	})

	t.Run("non-object json fails", func(t *testing.T) {
		_, err := Decode([]byte(`[1,2,3]`))
		assert.Error(t, err)
	})
}

func TestDecode_KeepAlive(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"KEEP_ALIVE"}`))
	require.NoError(t, err)
	assert.True(t, msg.IsKeepAlive())
	assert.False(t, msg.IsSoftwareError())
}

func TestSoftwareError(t *testing.T) {
	msg := SoftwareError("Connection timeout")

	assert.True(t, msg.IsSoftwareError())
	assert.False(t, msg.IsKeepAlive())
	assert.Equal(t, "Connection timeout", msg.Reason())
}

func TestMessage_Reason(t *testing.T) {
	t.Run("empty for ordinary messages", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"PING","reason":"x"}`))
		require.NoError(t, err)
		assert.Empty(t, msg.Reason())
	})
}
