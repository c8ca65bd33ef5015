package services

import (
	"context"
	"fmt"
	"log"
	"time"

	pubnub "github.com/pubnub/go/v7"
)

// StationLink keeps a realtime side channel per station: a periodic heartbeat
// with queue depth for the ops dashboard, and a remote "sync" command so
// support can force a drain without walking to the kiosk. Everything here is
// best-effort; the engine works identically with the link disabled.
type StationLink struct {
	pn         *pubnub.PubNub
	stationID  string
	session    *StationSession
	reconciler *SyncReconciler
	interval   time.Duration
}

func NewStationLink(pn *pubnub.PubNub, stationID string, session *StationSession, reconciler *SyncReconciler) *StationLink {
	return &StationLink{
		pn:         pn,
		stationID:  stationID,
		session:    session,
		reconciler: reconciler,
		interval:   30 * time.Second,
	}
}

func (l *StationLink) commandChannel() string {
	return fmt.Sprintf("station-%s", l.stationID)
}

// Run subscribes to the command channel and heartbeats until ctx is done.
func (l *StationLink) Run(ctx context.Context) {
	if l.pn == nil {
		return
	}

	listener := pubnub.NewListener()
	l.pn.AddListener(listener)
	l.pn.Subscribe().Channels([]string{l.commandChannel()}).Execute()
	defer l.pn.UnsubscribeAll()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-listener.Message:
			l.handleCommand(ctx, msg)
		case <-listener.Status:
			// Subscribe lifecycle noise; the connectivity prober is the
			// authority on online state.
		case <-ticker.C:
			l.heartbeat(ctx)
		}
	}
}

func (l *StationLink) handleCommand(ctx context.Context, msg *pubnub.PNMessage) {
	payload, ok := msg.Message.(map[string]any)
	if !ok {
		return
	}

	switch payload["type"] {
	case "sync":
		log.Printf("StationLink %s: remote sync requested", l.stationID)
		summary, err := l.reconciler.SyncNow(ctx)
		if err != nil {
			log.Printf("StationLink %s: remote sync failed: %v", l.stationID, err)
			return
		}
		log.Printf("StationLink %s: remote sync done: synced=%d failed=%d remaining=%d",
			l.stationID, summary.Synced, summary.Failed, summary.Remaining)
	}
}

func (l *StationLink) heartbeat(ctx context.Context) {
	pending, err := l.session.PendingCount(ctx)
	if err != nil {
		pending = -1
	}

	_, _, err = l.pn.Publish().
		Channel("stations").
		Message(map[string]any{
			"type":       "heartbeat",
			"station_id": l.stationID,
			"state":      l.session.State(),
			"pending":    pending,
			"at":         time.Now().UTC(),
		}).
		Execute()
	if err != nil {
		log.Printf("StationLink %s: heartbeat publish failed: %v", l.stationID, err)
	}
}
