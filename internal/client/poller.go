package client

import (
	"context"
	"log"
	"sync"
	"time"
)

// FrameSource produces camera frames. Close releases the capture device and
// must be safe to call once the source is no longer polled.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
	Close() error
}

// Poller grabs a frame at a fixed interval and hands it to submit. At most
// one polling loop is active: Start on a running poller replaces the previous
// loop, and Stop is idempotent. The active source is always closed exactly
// once, when its loop winds down.
type Poller struct {
	interval time.Duration
	submit   func(ctx context.Context, frame []byte) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(interval time.Duration, submit func(ctx context.Context, frame []byte) error) *Poller {
	return &Poller{interval: interval, submit: submit}
}

// Start begins polling source. Any previous loop is stopped, and its source
// released, before the new one begins.
func (p *Poller) Start(ctx context.Context, source FrameSource) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.loop(ctx, source, done)
}

// Stop halts the active loop and blocks until its source is released.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, source FrameSource, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := source.Close(); err != nil {
			log.Printf("poller: closing source: %v", err)
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := source.Frame(ctx)
			if err != nil {
				log.Printf("poller: frame: %v", err)
				continue
			}
			if err := p.submit(ctx, frame); err != nil {
				log.Printf("poller: submit: %v", err)
			}
		}
	}
}
