package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/drewmudry/visium-api/models"
	"github.com/drewmudry/visium-api/processing"
	"github.com/drewmudry/visium-api/render"
	"github.com/drewmudry/visium-api/tasks"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Config holds the filesystem layout and limits the processor works with.
type Config struct {
	ScratchDir     string // per-task scripts and media dirs
	VideoDir       string // durable output, served statically
	VideoURLPrefix string // public URL prefix for VideoDir
	MaxConcurrent  int64  // renders allowed at once
}

// Processor accepts video tasks and runs them in the background.
// Once submitted a task runs to completion; there is no per-task cancellation.
type Processor struct {
	Registry  tasks.Registry
	Generator processing.Generator
	Engine    render.Engine
	Events    tasks.Publisher
	Logger    *zap.Logger

	cfg      Config
	baseCtx  context.Context
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]struct{}
	newID    func() string
}

// NewProcessor creates a processor. Cancelling ctx stops tasks that are still
// waiting for a render slot; tasks already running are left to finish.
func NewProcessor(ctx context.Context, cfg Config, registry tasks.Registry, generator processing.Generator, engine render.Engine, events tasks.Publisher, logger *zap.Logger) *Processor {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if events == nil {
		events = tasks.NopPublisher{}
	}
	return &Processor{
		Registry:  registry,
		Generator: generator,
		Engine:    engine,
		Events:    events,
		Logger:    logger,
		cfg:       cfg,
		baseCtx:   ctx,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		inFlight:  make(map[string]struct{}),
		newID:     uuid.NewString,
	}
}

// Submit registers a new pending task for prompt and schedules it. It returns
// as soon as the task is registered.
func (p *Processor) Submit(prompt string) (models.Task, error) {
	id := p.newID()
	task, err := p.Registry.Create(id)
	if err != nil {
		return models.Task{}, fmt.Errorf("register task %s: %w", id, err)
	}
	p.Events.Publish(p.baseCtx, task)

	p.mu.Lock()
	p.inFlight[id] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(id, prompt)

	p.Logger.Info("task submitted", zap.String("task_id", id))
	return task, nil
}

// InFlight reports whether the background unit for id has not finished yet.
func (p *Processor) InFlight(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[id]
	return ok
}

// Wait blocks until every submitted task has finished or ctx is done.
func (p *Processor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) run(id, prompt string) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, id)
		p.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("task panicked", zap.String("task_id", id), zap.Any("panic", r))
			// a terminal status is final even if a later step blew up
			if task, ok := p.Registry.Get(id); ok && task.Status.Terminal() {
				return
			}
			p.setStatus(id, models.StatusFailed, "An unexpected error occurred: internal error", nil)
		}
	}()

	if err := p.sem.Acquire(p.baseCtx, 1); err != nil {
		p.setStatus(id, models.StatusFailed, "Server shutting down.", nil)
		return
	}
	defer p.sem.Release(1)

	p.HandleVideo(context.WithoutCancel(p.baseCtx), id, prompt)
}

// setStatus records a transition and announces it.
func (p *Processor) setStatus(id string, status models.Status, message string, videoURL *string) {
	task, err := p.Registry.SetStatus(id, status, message, videoURL)
	if err != nil {
		p.Logger.Error("update task status", zap.String("task_id", id), zap.String("status", string(status)), zap.Error(err))
		return
	}
	p.Logger.Info("task status changed",
		zap.String("task_id", id),
		zap.String("status", string(status)),
		zap.String("message", task.Message),
	)
	p.Events.Publish(context.Background(), task)
}
