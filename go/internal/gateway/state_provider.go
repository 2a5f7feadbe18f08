package gateway

import "github.com/mcdev12/prepaired/go/internal/countdown"

// StateProvider gives read access to countdown state for clients that need to
// resynchronise, e.g. after a reconnect
type StateProvider interface {
	Snapshot(room string) (countdown.Snapshot, bool)
	Snapshots() []countdown.Snapshot
}
