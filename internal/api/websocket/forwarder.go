package websocket

import (
	"github.com/ramonehamilton/matchup-companion/internal/daemon"
)

// SyncForwarder relays scheduler events to websocket clients.
type SyncForwarder struct {
	hub *Hub
}

// NewSyncForwarder creates a forwarder for hub.
func NewSyncForwarder(hub *Hub) *SyncForwarder {
	return &SyncForwarder{hub: hub}
}

// Emit implements daemon.EventEmitter. It never blocks the scheduler on a
// stopped hub.
func (f *SyncForwarder) Emit(event daemon.SyncEvent) {
	if f.hub == nil {
		return
	}
	f.hub.BroadcastEvent(Event{Type: string(event.Type), Data: event})
}

var _ daemon.EventEmitter = (*SyncForwarder)(nil)
