package countdown

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	ch chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 64)}
}

func (r *recorder) Emit(event Event) {
	r.ch <- event
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case event := <-r.ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for countdown event")
		return Event{}
	}
}

func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case event := <-r.ch:
		t.Fatalf("unexpected event %s(%d) for room %s", event.Type, event.Remaining, event.Room)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	registry := NewRegistry(DefaultConfig(), clock, rec)
	t.Cleanup(registry.Close)
	return registry, clock, rec
}

func tickOnce(t *testing.T, clock *clockwork.FakeClock, waiters int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, waiters))
	clock.Advance(time.Second)
}

func TestRegistry_StartCountsDownToTimeUp(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Start(ctx, "", 3))

	for _, want := range []int{2, 1, 0} {
		tickOnce(t, clock, 1)
		event := rec.next(t)
		assert.Equal(t, EventTypeTimeUpdate, event.Type)
		assert.Equal(t, want, event.Remaining)
		assert.Equal(t, DefaultRoom, event.Room)
	}

	up := rec.next(t)
	assert.Equal(t, EventTypeTimeUp, up.Type)
	assert.Equal(t, 0, up.Remaining)
	rec.expectNone(t)

	snap, ok := registry.Snapshot(DefaultRoom)
	require.True(t, ok)
	assert.False(t, snap.Active)
	assert.Equal(t, 0, snap.RemainingSeconds)
	assert.Equal(t, 3, snap.DurationSeconds)

	// The loop released its ticker.
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 0))
}

func TestRegistry_RestartSupersedesRunningCountdown(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Start(ctx, "mock-1", 5))
	tickOnce(t, clock, 1)
	assert.Equal(t, 4, rec.next(t).Remaining)

	require.NoError(t, registry.Start(ctx, "mock-1", 2))
	rec.expectNone(t)

	tickOnce(t, clock, 1)
	event := rec.next(t)
	assert.Equal(t, EventTypeTimeUpdate, event.Type)
	assert.Equal(t, 1, event.Remaining)

	tickOnce(t, clock, 1)
	assert.Equal(t, 0, rec.next(t).Remaining)
	assert.Equal(t, EventTypeTimeUp, rec.next(t).Type)
	rec.expectNone(t)
}

func TestRegistry_StartZeroIsImmediateTimeUp(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)

	require.NoError(t, registry.Start(context.Background(), "", 0))

	event := rec.next(t)
	assert.Equal(t, EventTypeTimeUp, event.Type)
	rec.expectNone(t)

	snap, ok := registry.Snapshot("")
	require.True(t, ok)
	assert.False(t, snap.Active)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 0))
}

func TestRegistry_InvalidDurationLeavesCountdownRunning(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Start(ctx, "", 10))

	err := registry.Start(ctx, "", -1)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	err = registry.Start(ctx, "", registry.MaxSeconds()+1)
	assert.ErrorIs(t, err, ErrDurationTooLong)

	tickOnce(t, clock, 1)
	assert.Equal(t, 9, rec.next(t).Remaining)

	snap, _ := registry.Snapshot("")
	assert.True(t, snap.Active)
	assert.Equal(t, 10, snap.DurationSeconds)
}

func TestRegistry_RoomsAreIsolated(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Start(ctx, "physics", 1))
	require.NoError(t, registry.Start(ctx, "chemistry", 5))

	tickOnce(t, clock, 2)

	got := map[string][]EventType{}
	for i := 0; i < 3; i++ {
		event := rec.next(t)
		got[event.Room] = append(got[event.Room], event.Type)
	}
	assert.Equal(t, []EventType{EventTypeTimeUpdate, EventTypeTimeUp}, got["physics"])
	assert.Equal(t, []EventType{EventTypeTimeUpdate}, got["chemistry"])

	snap, ok := registry.Snapshot("chemistry")
	require.True(t, ok)
	assert.Equal(t, 4, snap.RemainingSeconds)
	assert.True(t, snap.Active)

	global, ok := registry.Snapshot(DefaultRoom)
	require.True(t, ok)
	assert.Equal(t, 3600, global.RemainingSeconds)
	assert.False(t, global.Active)
}

func TestRegistry_PruneDropsIdleRooms(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Start(ctx, "done", 0))
	rec.next(t)
	require.NoError(t, registry.Start(ctx, "running", 30))

	assert.Equal(t, 0, registry.Prune())

	clock.Advance(DefaultConfig().IdleTTL)
	assert.Equal(t, 1, registry.Prune())

	_, ok := registry.Snapshot("done")
	assert.False(t, ok)
	_, ok = registry.Snapshot("running")
	assert.True(t, ok)
	_, ok = registry.Snapshot(DefaultRoom)
	assert.True(t, ok)
}

func TestRegistry_StartAfterPruneRunsSingleLoop(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)
	ctx := context.Background()

	// A start that looked the session up just before the janitor dropped it
	stale, err := registry.session("x")
	require.NoError(t, err)
	clock.Advance(DefaultConfig().IdleTTL)
	require.Equal(t, 1, registry.Prune())

	assert.False(t, stale.start(registry.ctx, 5))
	require.NoError(t, registry.Start(ctx, "x", 5))

	tickOnce(t, clock, 1)
	event := rec.next(t)
	assert.Equal(t, "x", event.Room)
	assert.Equal(t, 4, event.Remaining)
	rec.expectNone(t)

	assert.False(t, stale.Snapshot().Active)
	snap, ok := registry.Snapshot("x")
	require.True(t, ok)
	assert.True(t, snap.Active)
}

func TestRegistry_StartRacingCloseLeavesNothingRunning(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)
	ctx := context.Background()

	session, err := registry.session(DefaultRoom)
	require.NoError(t, err)
	registry.Close()

	assert.False(t, session.start(registry.ctx, 3))
	assert.False(t, session.Snapshot().Active)
	assert.ErrorIs(t, registry.Start(ctx, "", 3), ErrRegistryClosed)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 0))
	rec.expectNone(t)
}

func TestRegistry_CloseStopsCountdowns(t *testing.T) {
	registry, clock, rec := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Start(ctx, "", 3))
	registry.Close()

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 0))
	clock.Advance(time.Second)
	rec.expectNone(t)

	assert.ErrorIs(t, registry.Start(ctx, "", 3), ErrRegistryClosed)
}

func TestRegistry_Snapshots(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	require.NoError(t, registry.Start(context.Background(), "b-room", 5))
	require.NoError(t, registry.Start(context.Background(), "a-room", 5))

	snaps := registry.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "a-room", snaps[0].Room)
	assert.Equal(t, "b-room", snaps[1].Room)
	assert.Equal(t, DefaultRoom, snaps[2].Room)
}

func TestNormalizeRoom(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultRoom},
		{"   ", DefaultRoom},
		{" mock-7 ", "mock-7"},
		{"global", "global"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRoom(tt.in), "NormalizeRoom(%q)", tt.in)
	}
}

func TestValidateDuration(t *testing.T) {
	assert.NoError(t, ValidateDuration(0, 10))
	assert.NoError(t, ValidateDuration(10, 10))
	assert.NoError(t, ValidateDuration(1_000_000, 0))
	assert.ErrorIs(t, ValidateDuration(-5, 10), ErrInvalidDuration)
	assert.ErrorIs(t, ValidateDuration(11, 10), ErrDurationTooLong)
}
