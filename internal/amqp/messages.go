package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RecordSyncMessage announces an outbox entry. The worker loads the entry
// itself, so the message only carries its id.
type RecordSyncMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordSyncMessage(id string) *RecordSyncMessage {
	return &RecordSyncMessage{ID: id, Timestamp: time.Now()}
}

func (m *RecordSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordSyncMessageFromJSON(data []byte) (*RecordSyncMessage, error) {
	var msg RecordSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("sync message without id")
	}
	return &msg, nil
}
