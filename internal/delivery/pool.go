package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shorelinehq/courier/internal/config"
	"github.com/shorelinehq/courier/internal/models"
	"github.com/shorelinehq/courier/internal/queue"
	"github.com/shorelinehq/courier/internal/storage"
	"github.com/shorelinehq/courier/internal/tracing"
)

// Pool runs one consumer per channel queue. Consumers run concurrently
// with respect to each other, but each holds at most one leased message
// at a time, so a backoff wait only ever stalls its own queue's consumer.
type Pool struct {
	broker   queue.Broker
	worker   *Worker
	pollRate time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewPool(cfg config.DeliveryConfig, pollRate time.Duration, broker queue.Broker, store storage.Store, senders Registry, tracer *tracing.Correlator, log zerolog.Logger) *Pool {
	schedule := cfg.BackoffSchedule
	if len(schedule) == 0 {
		schedule = DefaultBackoffSchedule
	}
	if pollRate <= 0 {
		pollRate = 500 * time.Millisecond
	}

	worker := NewWorker(broker, store, senders, tracer, schedule, log)

	return &Pool{
		broker:   broker,
		worker:   worker,
		pollRate: pollRate,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for _, channel := range models.Channels() {
		queueName, ok := queue.ForChannel(channel)
		if !ok {
			continue
		}
		p.wg.Add(1)
		go func(name string) {
			defer p.wg.Done()
			p.consumeLoop(ctx, name)
		}(queueName)
	}
	p.log.Info().Int("consumers", len(models.Channels())).Msg("delivery consumers started")
}

// Stop quits the poll loops and waits for in-flight deliveries to settle.
// It does not cancel an attempt already in its backoff wait.
func (p *Pool) Stop() {
	p.log.Info().Msg("stopping delivery consumers")
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("delivery consumers stopped")
}

func (p *Pool) consumeLoop(ctx context.Context, queueName string) {
	ticker := time.NewTicker(p.pollRate)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, queueName)
		}
	}
}

// drain processes ready messages one at a time until the queue is empty
// or shutdown begins.
func (p *Pool) drain(ctx context.Context, queueName string) {
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		d, err := p.broker.Consume(ctx, queueName)
		if err != nil {
			p.log.Error().Err(err).Str("queue", queueName).Msg("failed to consume from queue")
			return
		}
		if d == nil {
			return
		}

		p.worker.Process(ctx, d)
	}
}
