package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeletionMessage asks the worker to delete one encaissement remotely.
// The outbox row carries the state; the message only points at it.
type DeletionMessage struct {
	DeletionID int64     `json:"deletion_id"`
	RecordID   int64     `json:"record_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewDeletionMessage(deletionID, recordID int64) *DeletionMessage {
	return &DeletionMessage{
		DeletionID: deletionID,
		RecordID:   recordID,
		Timestamp:  time.Now(),
	}
}

func (m *DeletionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DeletionMessageFromJSON(data []byte) (*DeletionMessage, error) {
	var msg DeletionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.DeletionID <= 0 || msg.RecordID <= 0 {
		return nil, fmt.Errorf("deletion message without ids: %s", data)
	}
	return &msg, nil
}
