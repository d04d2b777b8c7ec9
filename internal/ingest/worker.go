package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ghostgauge/gscore/internal/domain"
)

// Pool runs refresh jobs on a bounded set of workers. Jobs arrive from the
// cron scheduler, from the API's manual trigger (via the refresh.request
// topic), and from direct Enqueue calls.
type Pool struct {
	bus      domain.EventBus
	pipeline *Pipeline
	logger   *slog.Logger

	jobs    chan job
	workers int

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	mu      sync.Mutex
	started bool
}

type job struct {
	requestID string
	history   bool // also resync the full history series
}

// NewPool creates a refresh worker pool.
func NewPool(bus domain.EventBus, pipeline *Pipeline, workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		bus:      bus,
		pipeline: pipeline,
		logger:   logger,
		jobs:     make(chan job, queueSize),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start spawns the workers and subscribes to manual refresh requests.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}

	if p.bus != nil {
		sub, err := p.bus.Subscribe(p.ctx, domain.TopicRefreshRequest, func(ctx context.Context, msg *domain.Message) error {
			if err := p.Enqueue(msg.ID); err != nil {
				p.logger.Warn("refresh request dropped",
					"message_id", msg.ID,
					"error", err,
				)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("subscribe to refresh requests: %w", err)
		}
		p.subscriptions = append(p.subscriptions, sub)
	}

	p.logger.Info("ingest workers started",
		"workers", p.workers,
		"queue_size", cap(p.jobs),
	)
	return nil
}

// Enqueue submits a refresh job. Returns an error when the queue is full so
// callers can surface backpressure instead of blocking.
func (p *Pool) Enqueue(requestID string) error {
	select {
	case p.jobs <- job{requestID: requestID}:
		return nil
	default:
		return fmt.Errorf("refresh queue is full")
	}
}

// EnqueueWithHistory submits a refresh job that also resyncs the full
// history series before refreshing the snapshot.
func (p *Pool) EnqueueWithHistory(requestID string) error {
	select {
	case p.jobs <- job{requestID: requestID, history: true}:
		return nil
	default:
		return fmt.Errorf("refresh queue is full")
	}
}

// Stop drains the pool and unsubscribes.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	for _, sub := range p.subscriptions {
		_ = sub.Unsubscribe()
	}
	p.subscriptions = nil

	p.cancel()
	close(p.jobs)
	p.wg.Wait()

	p.logger.Info("ingest workers stopped")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.execute(j, id)
		}
	}
}

func (p *Pool) execute(j job, workerID int) {
	ctx := p.ctx

	if j.history {
		if _, err := p.pipeline.SyncHistory(ctx); err != nil {
			p.logger.Error("history sync failed",
				"worker", workerID,
				"request_id", j.requestID,
				"error", err,
			)
		}
	}

	if _, err := p.pipeline.Refresh(ctx); err != nil {
		p.logger.Error("refresh failed",
			"worker", workerID,
			"request_id", j.requestID,
			"error", err,
		)
	}
}
