// Package shardqueue is a small sharded work queue. Jobs submitted under the
// same key run one at a time in submission order; different keys may hash to
// different shards and run in parallel.
//
// Callers must not Submit concurrently for the same key when they depend on
// ordering: FIFO holds for the order in which Submit calls return.
package shardqueue

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
)

type queuedJob struct {
	ctx context.Context
	key string
	job Job
}

// ShardExecutor runs Jobs on one worker goroutine per shard.
type ShardExecutor struct {
	cfg    Config
	log    zerolog.Logger
	queues []chan queuedJob

	// mu orders Submit against Stop: an accepted job is always queued
	// before the workers start draining.
	mu     sync.RWMutex
	done   chan struct{}
	closed uint32

	wg sync.WaitGroup
}

// NewShardExecutor constructs the executor and starts its shard workers.
func NewShardExecutor(cfg Config) *ShardExecutor {
	cfg.applyDefaults()

	p := &ShardExecutor{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "shardqueue").Logger(),
		queues: make([]chan queuedJob, cfg.Shards),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedJob, cfg.QueueSize)
		p.queues[i] = ch
		p.wg.Add(1)
		go p.runWorker(i, ch)
	}
	return p
}

// Submit enqueues job on the shard derived from key.
//
//   - Returns ErrExecutorClosed once Stop has been called.
//   - Returns a *QueueFullError if the shard stays full for EnqueueTimeout.
//   - Returns ctx.Err() if ctx ends first.
//
// A nil return guarantees the job runs, even if Stop follows immediately.
func (p *ShardExecutor) Submit(ctx context.Context, key string, job Job) error {
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrExecutorClosed
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if atomic.LoadUint32(&p.closed) == 1 {
		return ErrExecutorClosed
	}

	shard := p.shardFor(key)
	ch := p.queues[shard]

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- queuedJob{ctx: ctx, key: key, job: job}:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Barrier waits until every job submitted for key before the call has run.
func (p *ShardExecutor) Barrier(ctx context.Context, key string) error {
	done := make(chan struct{})
	if err := p.Submit(ctx, key, JobFunc(func(context.Context) error {
		close(done)
		return nil
	})); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Stop rejects new work, lets every worker drain what is already queued and
// waits for them to exit. It is idempotent. A Submit already blocked on a
// full shard delays Stop by at most EnqueueTimeout.
func (p *ShardExecutor) Stop() {
	p.mu.Lock()
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		p.mu.Unlock()
		return
	}
	p.log.Debug().Int("shards", p.cfg.Shards).Msg("stopping executor")
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
	p.log.Debug().Msg("executor stopped")
}

// Close lets ShardExecutor satisfy io.Closer.
func (p *ShardExecutor) Close() error {
	p.Stop()
	return nil
}

func (p *ShardExecutor) runWorker(idx int, ch <-chan queuedJob) {
	defer p.wg.Done()
	label := labelFor(idx)

	for {
		select {
		case qj := <-ch:
			p.execute(label, qj, true)
			queueDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-p.done:
			drained := 0
			for {
				select {
				case qj := <-ch:
					p.execute(label, qj, false)
					drained++
				default:
					if drained > 0 {
						p.log.Debug().Int("worker", idx).Int("jobs", drained).Msg("drained queue")
					}
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

// execute runs one queued job. A job whose context already ended is skipped.
// Recoverable errors are retried with exponential backoff while retry is set
// and the executor is running.
func (p *ShardExecutor) execute(label string, qj queuedJob, retry bool) {
	if qj.job == nil {
		return
	}
	if err := qj.ctx.Err(); err != nil {
		p.handleError(err)
		return
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.BaseBackoff
	exp.Multiplier = 2
	exp.MaxInterval = p.cfg.MaxInterval
	exp.Reset()

	for attempt := 1; ; attempt++ {
		err := p.runOnce(label, qj)
		if err == nil {
			return
		}
		_, panicked := err.(*PanicError)
		if panicked || !retry || attempt >= p.cfg.MaxAttempts || errors.IsIrrecoverable(err) {
			p.handleError(err)
			return
		}
		p.log.Debug().Err(err).Str("key", qj.key).Int("attempt", attempt).Msg("retrying job")

		select {
		case <-time.After(exp.NextBackOff()):
		case <-p.done:
			p.handleError(err)
			return
		case <-qj.ctx.Done():
			p.handleError(qj.ctx.Err())
			return
		}
	}
}

// runOnce turns a panicking job into a *PanicError so the shard keeps serving.
func (p *ShardExecutor) runOnce(label string, qj queuedJob) (err error) {
	start := time.Now()
	defer func() {
		runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			panicsTotal.WithLabelValues(label).Inc()
			p.log.Error().Str("key", qj.key).Interface("panic", r).Msg("job panicked")
			err = &PanicError{Key: qj.key, Value: r}
		}
	}()
	return qj.job.Run(qj.ctx)
}

func (p *ShardExecutor) handleError(err error) {
	if err == nil || p.cfg.ErrorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("error handler panicked")
		}
	}()
	p.cfg.ErrorHandler(err)
}

func (p *ShardExecutor) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.cfg.Shards))
}
