package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/prepaired/go/internal/countdown"
)

func TestParseStartTimer(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    StartTimerRequest
		wantErr bool
	}{
		{name: "bare seconds", data: `3600`, want: StartTimerRequest{Seconds: 3600, HasSeconds: true}},
		{name: "zero", data: `0`, want: StartTimerRequest{Seconds: 0, HasSeconds: true}},
		{name: "object", data: `{"duration": 90}`, want: StartTimerRequest{Seconds: 90, HasSeconds: true}},
		{name: "object with test", data: `{"duration": 90, "test_id": "mock-1"}`, want: StartTimerRequest{Seconds: 90, HasSeconds: true, TestID: "mock-1"}},
		{name: "test only", data: `{"test_id": "mock-1"}`, want: StartTimerRequest{TestID: "mock-1"}},
		{name: "negative", data: `-1`, wantErr: true},
		{name: "fraction", data: `1.5`, wantErr: true},
		{name: "string", data: `"60"`, wantErr: true},
		{name: "bool", data: `true`, wantErr: true},
		{name: "null", data: `null`, wantErr: true},
		{name: "missing", data: ``, wantErr: true},
		{name: "empty object", data: `{}`, wantErr: true},
		{name: "string duration in object", data: `{"duration": "60"}`, wantErr: true},
		{name: "huge", data: `99999999999`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStartTimer(json.RawMessage(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, countdown.ErrInvalidDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCountdownEvent(t *testing.T) {
	at := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	update, err := json.Marshal(NewCountdownEvent(countdown.Event{
		Room: "global", Type: countdown.EventTypeTimeUpdate, Remaining: 0, EmittedAt: at,
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"time-update","room":"global","data":0,"timestamp":"2026-01-10T09:00:00Z"}`, string(update))

	up, err := json.Marshal(NewCountdownEvent(countdown.Event{
		Room: "global", Type: countdown.EventTypeTimeUp, EmittedAt: at,
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"time-up","room":"global","timestamp":"2026-01-10T09:00:00Z"}`, string(up))
}
