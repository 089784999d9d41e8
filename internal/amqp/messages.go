package amqp

import (
	"encoding/json"
	"time"
)

// PeriodsSyncMessage is the lightweight message telling the worker that a
// user's period set changed. It carries only the user id and a period count;
// the worker re-reads the canonical state from the database before uploading.
type PeriodsSyncMessage struct {
	UserID    string    `json:"user_id"`
	Periods   int       `json:"periods"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPeriodsSyncMessage(userID string, periods int) *PeriodsSyncMessage {
	return &PeriodsSyncMessage{
		UserID:    userID,
		Periods:   periods,
		Timestamp: time.Now(),
	}
}

func (m *PeriodsSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PeriodsSyncMessageFromJSON(data []byte) (*PeriodsSyncMessage, error) {
	var msg PeriodsSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
