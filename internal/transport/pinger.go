package transport

import (
	"log/slog"
	"sync"
	"time"
)

// pingInterval is the cadence of the background keep-alive pinger.
const pingInterval = 5 * time.Second

// Pinger is the single process-wide goroutine that keeps WebSocket NAT
// mappings alive and detects dead peers via eventual write failure. Raw
// transports register nothing here; they rely solely on the read timeout.
type Pinger struct {
	logger *slog.Logger

	mu    sync.Mutex
	live  map[*Transport]struct{}
	stopC chan struct{}
	once  sync.Once
}

// NewPinger creates a Pinger. Call Run to start its background loop.
func NewPinger(logger *slog.Logger) *Pinger {
	return &Pinger{
		logger: logger,
		live:   make(map[*Transport]struct{}),
		stopC:  make(chan struct{}),
	}
}

// Register adds t to the set of transports pinged on each tick. Callers
// should Unregister on transport close to avoid leaking the entry.
func (p *Pinger) Register(t *Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live[t] = struct{}{}
}

// Unregister removes t from the ping set.
func (p *Pinger) Unregister(t *Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.live, t)
}

// Run blocks, sending a WebSocket ping to every registered transport every
// pingInterval, until Stop is called. Callers run it in its own goroutine.
func (p *Pinger) Run() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopC:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Pinger) tick() {
	p.mu.Lock()
	targets := make([]*Transport, 0, len(p.live))
	for t := range p.live {
		targets = append(targets, t)
	}
	p.mu.Unlock()

	for _, t := range targets {
		if t.Closed() {
			p.Unregister(t)
			continue
		}
		if err := t.sendPing(); err != nil {
			p.logger.Debug("pinger: ping write failed, closing transport",
				slog.String("transport_id", t.ID), slog.Any("error", err))
			t.Close()
			p.Unregister(t)
		}
	}
}

// Stop ends the Run loop. Safe to call more than once.
func (p *Pinger) Stop() {
	p.once.Do(func() { close(p.stopC) })
}
