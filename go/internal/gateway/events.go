package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mcdev12/prepaired/go/internal/countdown"
)

// ClientEvent is the name of a message a client sends
type ClientEvent string

const (
	ClientEventStartTimer ClientEvent = "start-timer"
)

// ServerEventType is the name of a message the server sends
type ServerEventType string

const (
	ServerEventTimeUpdate ServerEventType = ServerEventType(countdown.EventTypeTimeUpdate)
	ServerEventTimeUp     ServerEventType = ServerEventType(countdown.EventTypeTimeUp)
	ServerEventTimerError ServerEventType = "timer-error"
)

// ClientMessage is the envelope of every frame received from a client
type ClientMessage struct {
	Event ClientEvent     `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is the envelope of every frame sent to clients
type ServerEvent struct {
	Event     ServerEventType `json:"event"`
	Room      string          `json:"room"`
	Data      interface{}     `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TimerErrorPayload is sent to the issuing client when a start-timer is rejected
type TimerErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StartTimerRequest is a decoded start-timer payload
type StartTimerRequest struct {
	Seconds    int
	HasSeconds bool
	TestID     string
}

// NewCountdownEvent converts a countdown emission into its wire form
func NewCountdownEvent(event countdown.Event) *ServerEvent {
	wsEvent := &ServerEvent{
		Event:     ServerEventType(event.Type),
		Room:      event.Room,
		Timestamp: event.EmittedAt,
	}
	if event.Type == countdown.EventTypeTimeUpdate {
		wsEvent.Data = event.Remaining
	}
	return wsEvent
}

// ParseStartTimer decodes the data of a start-timer message. The data is either a
// bare number of seconds or an object {"duration": n, "test_id": "..."}.
func ParseStartTimer(data json.RawMessage) (StartTimerRequest, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return StartTimerRequest{}, fmt.Errorf("%w: missing duration", countdown.ErrInvalidDuration)
	}

	if data[0] == '{' {
		var body struct {
			Duration json.RawMessage `json:"duration"`
			TestID   string          `json:"test_id"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return StartTimerRequest{}, fmt.Errorf("decode start-timer payload: %w", err)
		}

		req := StartTimerRequest{TestID: body.TestID}
		if len(body.Duration) > 0 && !bytes.Equal(body.Duration, []byte("null")) {
			seconds, err := parseSeconds(body.Duration)
			if err != nil {
				return StartTimerRequest{}, err
			}
			req.Seconds = seconds
			req.HasSeconds = true
		}
		if !req.HasSeconds && req.TestID == "" {
			return StartTimerRequest{}, fmt.Errorf("%w: missing duration", countdown.ErrInvalidDuration)
		}
		return req, nil
	}

	seconds, err := parseSeconds(data)
	if err != nil {
		return StartTimerRequest{}, err
	}
	return StartTimerRequest{Seconds: seconds, HasSeconds: true}, nil
}

// parseSeconds accepts only a JSON number holding a whole, non-negative count
func parseSeconds(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return 0, fmt.Errorf("%w: %v", countdown.ErrInvalidDuration, err)
	}

	number, ok := value.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: not a number", countdown.ErrInvalidDuration)
	}
	n, err := number.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a whole number", countdown.ErrInvalidDuration, number)
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d out of range", countdown.ErrInvalidDuration, n)
	}
	return int(n), nil
}
