package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

// MessageID is assigned by the backend as either a number or a string.
type MessageID string

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = MessageID(strings.TrimSpace(n.String()))
	return nil
}

type ChatMessage struct {
	ID        MessageID `json:"id"`
	OrderID   string    `json:"order_id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type plain ChatMessage
	var aux struct {
		plain
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = ChatMessage(aux.plain)
	m.Timestamp, _ = ParseTimestamp(aux.Timestamp)
	return nil
}
