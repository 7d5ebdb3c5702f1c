package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PollerConfig holds configuration for the pending-sync poller.
type PollerConfig struct {
	// PollInterval is how often to look for unsynced expenses (default: 1m).
	PollInterval time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{PollInterval: time.Minute}
}

// Poller periodically runs SyncWorker.ProcessPending until stopped.
type Poller struct {
	worker *SyncWorker
	config PollerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPoller(w *SyncWorker, config PollerConfig) *Poller {
	if config.PollInterval <= 0 {
		config = DefaultPollerConfig()
	}
	return &Poller{worker: w, config: config}
}

// Start begins the loop. Returns an error if already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.runLoop(ctx, p.stopCh, p.doneCh)

	p.worker.logger.InfoContext(ctx, "Pending sync poller started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop signals the loop and waits for it, or for ctx to expire.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.pass(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx)
		}
	}
}

func (p *Poller) pass(ctx context.Context) {
	if _, _, err := p.worker.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		p.worker.logger.ErrorContext(ctx, "Pending sync pass failed", "error", err)
	}
}
