package services

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

// ConnectivityProber polls the server health endpoint and exposes an online
// flag plus edge-triggered became-online events. The station never waits on
// it for a scan decision (it just tries the call and falls back); the
// reconciler uses the edges to drain immediately after an outage.
type ConnectivityProber struct {
	healthURL string
	interval  time.Duration
	http      *http.Client

	online atomic.Bool
	events chan struct{}
}

func NewConnectivityProber(serverURL string, interval time.Duration) *ConnectivityProber {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ConnectivityProber{
		healthURL: serverURL + "/health",
		interval:  interval,
		http:      &http.Client{Timeout: 2 * time.Second},
		events:    make(chan struct{}, 1),
	}
}

// Online reports the last observed connectivity state.
func (p *ConnectivityProber) Online() bool {
	return p.online.Load()
}

// Events delivers one signal per offline-to-online transition. Buffered by
// one: a slow consumer coalesces bursts instead of backing up the prober.
func (p *ConnectivityProber) Events() <-chan struct{} {
	return p.events
}

// Run probes until ctx is cancelled.
func (p *ConnectivityProber) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *ConnectivityProber) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return
	}

	resp, err := p.http.Do(req)
	up := err == nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}

	was := p.online.Swap(up)
	if up && !was {
		log.Println("Connectivity: back online")
		select {
		case p.events <- struct{}{}:
		default:
		}
	} else if !up && was {
		log.Println("Connectivity: went offline")
	}
}
