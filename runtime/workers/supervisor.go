package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultRestartInterval = 200 * time.Millisecond
	maxRestartInterval     = 10 * time.Second
)

// Supervisor runs the server's background loops (event fan-out, cluster relay,
// process stats, debug inspector) and restarts any of them that fails.
// Each worker backs off exponentially between consecutive failures; a run
// lasting longer than maxRestartInterval resets the delay.
type Supervisor struct {
	log             *slog.Logger
	metrics         *observability.Metrics
	restartInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	workers []contract.Worker
	wg      sync.WaitGroup
}

func NewSupervisor(log *slog.Logger, metrics *observability.Metrics, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{log: log, metrics: metrics, restartInterval: restartInterval}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Run blocks until every worker has returned for good.
// Canceling ctx or calling Stop ends all of them.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	workers := append([]contract.Worker(nil), s.workers...)
	s.mu.Unlock()

	for _, w := range workers {
		s.wg.Add(1)
		go s.supervise(ctx, w)
	}
	s.wg.Wait()
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Supervisor) supervise(ctx context.Context, w contract.Worker) {
	defer s.wg.Done()
	name := contract.WorkerName(w)
	log := s.log.With("worker", name)
	delay := s.restartInterval

	for ctx.Err() == nil {
		started := time.Now()
		err := runGuarded(ctx, w)
		switch {
		case ctx.Err() != nil:
			log.Info("Worker stopped")
			return
		case err == nil:
			log.Info("Worker finished")
			return
		}

		if time.Since(started) > maxRestartInterval {
			delay = s.restartInterval
		}
		log.Warn("Worker failed, restarting", "error", err, "delay", delay)
		s.metrics.IncRestart(name)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRestartInterval)
	}
}

// runGuarded turns a panic into ErrWorkerPanic.
func runGuarded(ctx context.Context, w contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return w.Run(ctx)
}
