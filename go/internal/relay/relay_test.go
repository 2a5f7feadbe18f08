package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/prepaired/go/internal/countdown"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subject = subject
	c.data = data
	return c.err
}

type startCall struct {
	room    string
	seconds int
}

type fakeStarter struct {
	calls []startCall
}

func (s *fakeStarter) Start(_ context.Context, room string, seconds int) error {
	s.calls = append(s.calls, startCall{room, seconds})
	return nil
}

func TestPublisher_Start(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "timer.control", 600)

	require.NoError(t, p.Start(context.Background(), "  mock-3 ", 90))
	assert.Equal(t, "timer.control", conn.subject)

	var cmd StartCommand
	require.NoError(t, json.Unmarshal(conn.data, &cmd))
	assert.Equal(t, "mock-3", cmd.Room)
	assert.Equal(t, 90, cmd.Seconds)
	assert.NotEmpty(t, cmd.Origin)
	assert.False(t, cmd.IssuedAt.IsZero())
}

func TestPublisher_ValidatesBeforePublishing(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "timer.control", 600)

	assert.ErrorIs(t, p.Start(context.Background(), "", -1), countdown.ErrInvalidDuration)
	assert.ErrorIs(t, p.Start(context.Background(), "", 601), countdown.ErrDurationTooLong)
	assert.Nil(t, conn.data)
}

func TestPublisher_PublishError(t *testing.T) {
	boom := errors.New("nats: connection closed")
	p := NewPublisher(&fakeConn{err: boom}, "timer.control", 0)
	assert.ErrorIs(t, p.Start(context.Background(), "", 10), boom)
}

func TestSubscriber_Apply(t *testing.T) {
	target := &fakeStarter{}
	s := NewSubscriber(nil, "timer.control", target)

	first, _ := json.Marshal(StartCommand{Room: "global", Seconds: 60})
	second, _ := json.Marshal(StartCommand{Room: "global", Seconds: 30})
	require.NoError(t, s.apply(first))
	require.NoError(t, s.apply(second))
	assert.Equal(t, []startCall{{"global", 60}, {"global", 30}}, target.calls)

	assert.Error(t, s.apply([]byte("not json")))
	assert.Len(t, target.calls, 2)
}
