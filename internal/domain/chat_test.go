package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageID_Unmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want MessageID
	}{
		{`42`, "42"},
		{`"42"`, "42"},
		{`"tmp-abc"`, "tmp-abc"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var id MessageID
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &id), tt.raw)
		assert.Equal(t, tt.want, id, tt.raw)
	}

	var id MessageID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
}

func TestChatMessage_UnmarshalBackendShape(t *testing.T) {
	raw := `[
		{"id": 1, "order_id": "ord-1", "sender": "admin", "content": "Bonjour", "timestamp": "2024-05-01T10:00:00.5", "is_read": false},
		{"id": "2", "order_id": "ord-1", "sender": "user", "content": "Merci", "timestamp": "2024-05-01T10:01:00+00:00", "is_read": true}
	]`
	var msgs []ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msgs))
	require.Len(t, msgs, 2)

	assert.Equal(t, MessageID("1"), msgs[0].ID)
	assert.Equal(t, SenderAdmin, msgs[0].Sender)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC), msgs[0].Timestamp)
	assert.Equal(t, MessageID("2"), msgs[1].ID)
	assert.True(t, msgs[1].IsRead)
	assert.True(t, msgs[1].Timestamp.Equal(time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC)))
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2024-05-01T10:00:00Z", "2024-05-01T10:00:00", "2024-05-01 10:00:00.123", "2024-05-01"} {
		_, ok := ParseTimestamp(s)
		assert.True(t, ok, s)
	}
	for _, s := range []string{"", "yesterday", "01/05/2024"} {
		_, ok := ParseTimestamp(s)
		assert.False(t, ok, s)
	}
}
