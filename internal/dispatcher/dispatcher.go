// Package dispatcher runs session workflows on a bounded worker pool.
package dispatcher

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/webhook"
)

// Executor runs one accepted request.
type Executor interface {
	Execute(ctx context.Context, req *webhook.ProjectRequest) error
}

// Config controls dispatcher behaviour
type Config struct {
	Workers   int
	QueueSize int
}

// Dispatcher runs requests off the request path. Requests for the same
// project never run concurrently; nothing is retried.
type Dispatcher struct {
	executor Executor
	cfg      Config
	logger   zerolog.Logger

	queue chan *webhook.ProjectRequest

	keyedLocks *keyedMutex

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	once sync.Once
}

// New creates a dispatcher and starts its workers.
func New(executor Executor, cfg Config, logger zerolog.Logger) *Dispatcher {
	normalized := normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		executor:   executor,
		cfg:        normalized,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
		queue:      make(chan *webhook.ProjectRequest, normalized.QueueSize),
		keyedLocks: newKeyedMutex(),
		ctx:        ctx,
		cancel:     cancel,
		stopCh:     make(chan struct{}),
	}
	d.startWorkers()
	return d
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	return cfg
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue queues req without blocking.
func (d *Dispatcher) Enqueue(req *webhook.ProjectRequest) error {
	if req == nil {
		return errors.New("dispatcher enqueue: request is nil")
	}

	select {
	case <-d.stopCh:
		return webhook.ErrQueueClosed
	default:
	}

	select {
	case d.queue <- req:
		return nil
	default:
		return webhook.ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			d.drain()
			return
		case req := <-d.queue:
			d.process(req)
		}
	}
}

// drain runs whatever was accepted before shutdown; those requests are
// already marked processed and would otherwise be lost.
func (d *Dispatcher) drain() {
	for {
		select {
		case req := <-d.queue:
			d.process(req)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(req *webhook.ProjectRequest) {
	log := d.logger.With().Str("project", req.ProjectName).Str("request_id", req.RequestID).Logger()

	d.keyedLocks.Lock(req.ProjectName)
	defer d.keyedLocks.Unlock(req.ProjectName)

	if err := d.executor.Execute(d.ctx, req); err != nil {
		log.Error().Err(err).Msg("session workflow failed")
		return
	}
	log.Info().Msg("session workflow finished")
}

// Shutdown stops accepting work and waits for workers to finish queued
// requests. When ctx expires first, in-flight workflows are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.once.Do(func() {
		close(d.stopCh)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		d.cancel()
	case <-done:
		d.cancel()
	}
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()

	if !ok {
		return
	}

	m.Unlock()
}
