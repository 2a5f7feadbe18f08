package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/prepaired/go/internal/countdown"
)

func newFullConnectionManager(t *testing.T) *ConnectionManager {
	t.Helper()
	config := DefaultConnectionConfig()
	config.BroadcastBuffer = 1
	cm := NewConnectionManager(config)

	cm.Emit(countdown.Event{Room: "mock-1", Type: countdown.EventTypeTimeUpdate, Remaining: 2})
	require.Len(t, cm.broadcastCh, 1)
	return cm
}

func TestConnectionManager_FullQueueDropsTicks(t *testing.T) {
	cm := newFullConnectionManager(t)

	cm.Emit(countdown.Event{Room: "mock-1", Type: countdown.EventTypeTimeUpdate, Remaining: 1})

	message := <-cm.broadcastCh
	assert.Equal(t, 2, message.Event.Data)
	assert.Empty(t, cm.broadcastCh)
}

func TestConnectionManager_FullQueueKeepsTimeUp(t *testing.T) {
	cm := newFullConnectionManager(t)

	var queued atomic.Bool
	go func() {
		cm.Emit(countdown.Event{Room: "mock-1", Type: countdown.EventTypeTimeUp})
		queued.Store(true)
	}()

	assert.Never(t, queued.Load, 50*time.Millisecond, 10*time.Millisecond)

	first := <-cm.broadcastCh
	assert.Equal(t, ServerEventTimeUpdate, first.Event.Event)

	require.Eventually(t, queued.Load, time.Second, 5*time.Millisecond)
	last := <-cm.broadcastCh
	assert.Equal(t, ServerEventTimeUp, last.Event.Event)
	assert.Equal(t, "mock-1", last.Room)
}

func TestConnectionManager_TimeUpGivesUpAfterStop(t *testing.T) {
	cm := newFullConnectionManager(t)

	var returned atomic.Bool
	go func() {
		cm.Emit(countdown.Event{Room: "mock-1", Type: countdown.EventTypeTimeUp})
		returned.Store(true)
	}()
	assert.Never(t, returned.Load, 50*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cm.Start(ctx)

	require.Eventually(t, returned.Load, time.Second, 5*time.Millisecond)
}
