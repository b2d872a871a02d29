package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	sent := HeartbeatPayload{
		ClientID:    "vb-1",
		Timestamp:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		ActiveCalls: 2,
		QueuedCalls: 5,
	}
	data, err := Marshal(MsgHeartbeat, sent)
	require.NoError(t, err)

	msgType, raw, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, MsgHeartbeat, msgType)

	got, err := UnmarshalPayload[HeartbeatPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestMarshalNilPayloadOmitsField(t *testing.T) {
	data, err := Marshal(MsgCancelAll, nil)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "payload")

	msgType, raw, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, MsgCancelAll, msgType)
	assert.Empty(t, raw)
}

func TestUnmarshalRejectsMissingType(t *testing.T) {
	_, _, err := Unmarshal([]byte(`{"payload":{}}`))
	assert.Error(t, err)

	_, _, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}

func TestConfigUpdateClearedOverride(t *testing.T) {
	data, err := Marshal(MsgConfigUpdate, ConfigUpdatePayload{
		Endpoints: map[string]string{"chat": ""},
	})
	require.NoError(t, err)

	_, raw, err := Unmarshal(data)
	require.NoError(t, err)
	got, err := UnmarshalPayload[ConfigUpdatePayload](raw)
	require.NoError(t, err)

	cleared, present := got.Endpoints["chat"]
	assert.True(t, present, "an empty override must survive the round trip")
	assert.Equal(t, "", cleared)
}
