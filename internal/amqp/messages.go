package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// GoalAdvisoryMessage announces a non-fatal store condition, e.g. a mutation
// that was applied locally only.
type GoalAdvisoryMessage struct {
	Kind      string    `json:"kind"`
	Op        string    `json:"op"`
	GoalID    string    `json:"goal_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewGoalAdvisoryMessage(kind, op, goalID string, cause error) *GoalAdvisoryMessage {
	msg := &GoalAdvisoryMessage{
		Kind:      kind,
		Op:        op,
		GoalID:    goalID,
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *GoalAdvisoryMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GoalAdvisoryMessageFromJSON decodes a message and checks required fields.
func GoalAdvisoryMessageFromJSON(data []byte) (*GoalAdvisoryMessage, error) {
	var msg GoalAdvisoryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind == "" {
		return nil, errors.New("advisory without kind")
	}
	return &msg, nil
}
