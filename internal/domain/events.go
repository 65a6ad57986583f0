package domain

import (
	"time"
)

// ConnectivityEvent announces a change in the device's network reachability.
// Published on the internal event bus by whoever observes the change (the
// device shell via the diagnostics API); the engine reacts to regained
// connectivity by draining and refreshing.
type ConnectivityEvent struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}
