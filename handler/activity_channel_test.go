package handler

import (
	"encoding/json"
	"testing"

	"dinq_federation/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityConn_LiveWaitsForBackfill(t *testing.T) {
	ac := &activityConn{gates: make(map[string]*appGate)}

	assert.ErrorIs(t, ac.EmitLive("post", FrameData, 1), event.ErrNotReady)

	ran := false
	ac.backfill("post", func() {
		ran = true
		assert.False(t, ac.gate("post").ready)
	})
	assert.True(t, ran)
	assert.True(t, ac.gate("post").ready)

	// 各应用独立
	assert.ErrorIs(t, ac.EmitLive("chat", FrameData, 1), event.ErrNotReady)
}

func TestEnvelope_Payload(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		env, err := newEnvelope("chat", []byte{0x00, 0xff})
		require.NoError(t, err)
		assert.Equal(t, contentTypeOctetStream, env.ContentType)

		raw, err := json.Marshal(env)
		require.NoError(t, err)
		var back Envelope
		require.NoError(t, json.Unmarshal(raw, &back))
		p, err := back.payload()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0xff}, p.Data)
	})

	t.Run("json value", func(t *testing.T) {
		env, err := newEnvelope("post", map[string]int{"cursor": 7})
		require.NoError(t, err)
		assert.Empty(t, env.ContentType)
		p, err := env.payload()
		require.NoError(t, err)
		assert.True(t, p.IsJSON())
		assert.JSONEq(t, `{"cursor":7}`, string(p.Data))
	})

	t.Run("json payload must be valid", func(t *testing.T) {
		_, err := newEnvelope("post", event.Payload{ContentType: event.ContentTypeJSON, Data: []byte("{")})
		assert.Error(t, err)
	})

	t.Run("non-json data must be base64", func(t *testing.T) {
		env := Envelope{AppID: "chat", ContentType: "image/png", Data: json.RawMessage(`"***"`)}
		_, err := env.payload()
		assert.Error(t, err)
	})
}
