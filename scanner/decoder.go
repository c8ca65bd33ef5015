package scanner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// FrameSource abstracts whatever produces decoded QR payloads: a camera
// pipeline, a USB keyboard-wedge scanner, or a test fixture. NextFrame blocks
// until a payload is available or ctx is done.
type FrameSource interface {
	NextFrame(ctx context.Context) (string, error)
}

// Decoder samples a frame source at a bounded rate and publishes payloads on
// a channel. It owns no business logic. Physical scanners re-emit the same
// code many times per second while it sits in front of the lens, so repeats
// of the previous payload are suppressed inside a cooldown window.
type Decoder struct {
	source   FrameSource
	interval time.Duration
	cooldown time.Duration

	out    chan string
	paused atomic.Bool

	mu          sync.Mutex
	lastPayload string
	lastSeenAt  time.Time
}

func NewDecoder(source FrameSource, interval, cooldown time.Duration) *Decoder {
	if interval <= 0 {
		interval = 150 * time.Millisecond
	}
	return &Decoder{
		source:   source,
		interval: interval,
		cooldown: cooldown,
		out:      make(chan string, 1),
	}
}

// Payloads is the stream of deduplicated scan payloads.
func (d *Decoder) Payloads() <-chan string {
	return d.out
}

// Pause drops frames until Resume. The station pauses the decoder while a
// scan is processing so only one attempt is in flight per station.
func (d *Decoder) Pause()  { d.paused.Store(true) }
func (d *Decoder) Resume() { d.paused.Store(false) }

// Run samples frames until ctx is cancelled. Blocking happens in frame
// acquisition only; a slow network call never stalls the sampling loop.
func (d *Decoder) Run(ctx context.Context) {
	defer close(d.out)

	for {
		payload, err := d.source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			log.Printf("Decoder: frame source error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.interval):
			}
			continue
		}

		if payload != "" && !d.paused.Load() && d.accept(payload) {
			select {
			case d.out <- payload:
			case <-ctx.Done():
				return
			default:
				// Station is still busy with the previous payload.
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.interval):
		}
	}
}

func (d *Decoder) accept(payload string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if payload == d.lastPayload && now.Sub(d.lastSeenAt) < d.cooldown {
		d.lastSeenAt = now
		return false
	}

	d.lastPayload = payload
	d.lastSeenAt = now
	return true
}

// LineSource adapts a line-oriented reader to a FrameSource. USB wedge
// scanners present as keyboards and emit one line per decode, which makes
// stdin a workable camera stand-in on kiosk hardware.
type LineSource struct {
	lines chan string
	errs  chan error
}

func NewLineSource(r io.Reader) *LineSource {
	s := &LineSource{
		lines: make(chan string),
		errs:  make(chan error, 1),
	}

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			s.errs <- err
		}
		close(s.lines)
	}()

	return s
}

func (s *LineSource) NextFrame(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-s.errs:
		return "", err
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}
