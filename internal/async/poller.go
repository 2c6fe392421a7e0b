package async

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Processor attempts one unit of work. claimed is false when there was nothing to do.
type Processor interface {
	ProcessNext(ctx context.Context) (claimed bool, err error)
}

// Poller runs a fixed number of loops, each making one claim attempt per
// tick. An attempt runs to completion before the loop waits for its next tick.
type Poller struct {
	proc     Processor
	logger   *slog.Logger
	workers  int
	interval time.Duration

	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	stop   context.CancelFunc
	closed bool
}

type Option func(*Poller)

func WithWorkers(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func NewPoller(proc Processor, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		proc:     proc,
		logger:   logger,
		workers:  1,
		interval: 5 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the poll loops. The first attempt happens immediately.
// Cancelling ctx stops new ticks, like Shutdown.
func (p *Poller) Start(ctx context.Context) {
	p.once.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			return
		}
		loopCtx, cancel := context.WithCancel(ctx)
		p.stop = cancel
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.loop(loopCtx, i+1)
		}
		p.logger.Info("poller started", "workers", p.workers, "interval", p.interval)
	})
}

func (p *Poller) loop(ctx context.Context, loopID int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.attempt(ctx, loopID)
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped", "loop", loopID)
			return
		case <-ticker.C:
		}
	}
}

// attempt runs one claim on a context that shutdown does not cancel, so a
// claimed job always reaches a terminal state.
func (p *Poller) attempt(ctx context.Context, loopID int) {
	if ctx.Err() != nil {
		return
	}
	claimed, err := p.proc.ProcessNext(context.WithoutCancel(ctx))
	switch {
	case err != nil && !claimed:
		p.logger.Warn("claim attempt failed, retrying next tick", "loop", loopID, "error", err)
	case err != nil:
		p.logger.Error("job processing failed", "loop", loopID, "error", err)
	case claimed:
		p.logger.Debug("job processed", "loop", loopID)
	}
}

// Shutdown stops scheduling new attempts and waits for in-flight jobs,
// or until ctx is done.
func (p *Poller) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.stop != nil {
		p.stop()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("poller drained, shutdown complete")
	}
}
