package engine

import (
	"context"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/message"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
)

// MessageHandler answers decoded foreground envelopes.
type MessageHandler interface {
	Handle(ctx context.Context, env message.Envelope) (message.Reply, error)
}

// Engine turns host events into tasks. Each call starts one task and returns
// its future; the HTTP surface and the CLI await them.
type Engine struct {
	lifecycle  ports.LifecycleService
	dispatcher ports.DispatcherService
	replay     ports.ReplayService
	messages   MessageHandler
	push       ports.PushService
	logger     *logrus.Logger

	tasks sync.WaitGroup
}

type Deps struct {
	Lifecycle  ports.LifecycleService
	Dispatcher ports.DispatcherService
	Replay     ports.ReplayService
	Messages   MessageHandler
	Push       ports.PushService
	Logger     *logrus.Logger
}

func New(deps Deps) *Engine {
	return &Engine{
		lifecycle:  deps.Lifecycle,
		dispatcher: deps.Dispatcher,
		replay:     deps.Replay,
		messages:   deps.Messages,
		push:       deps.Push,
		logger:     deps.Logger,
	}
}

func (e *Engine) Install(ctx context.Context) *Future[struct{}] {
	return track(e, ctx, "install", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.lifecycle.Install(ctx)
	})
}

func (e *Engine) Activate(ctx context.Context) *Future[struct{}] {
	return track(e, ctx, "activate", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.lifecycle.Activate(ctx)
	})
}

// Fetch dispatches one intercepted request. The dispatcher waits on the
// activation gate before touching partitions.
func (e *Engine) Fetch(ctx context.Context, req *http.Request) *Future[*ports.DispatchResult] {
	return track(e, ctx, "fetch", func(ctx context.Context) (*ports.DispatchResult, error) {
		return e.dispatcher.Dispatch(ctx, req)
	})
}

// Sync drains the sync queue.
func (e *Engine) Sync(ctx context.Context) *Future[ports.ReplayReport] {
	return track(e, ctx, "sync", func(ctx context.Context) (ports.ReplayReport, error) {
		return e.replay.Replay(ctx)
	})
}

func (e *Engine) Message(ctx context.Context, env message.Envelope) *Future[message.Reply] {
	return track(e, ctx, "message", func(ctx context.Context) (message.Reply, error) {
		return e.messages.Handle(ctx, env)
	})
}

func (e *Engine) Push(ctx context.Context, payload []byte) *Future[notification.Notification] {
	return track(e, ctx, "push", func(ctx context.Context) (notification.Notification, error) {
		return e.push.HandlePush(ctx, payload)
	})
}

// Wait blocks until every started task has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

func track[T any](e *Engine, ctx context.Context, name string, fn func(context.Context) (T, error)) *Future[T] {
	e.tasks.Add(1)
	return Go(ctx, func(ctx context.Context) (T, error) {
		defer e.tasks.Done()
		v, err := fn(ctx)
		if err != nil && e.logger != nil {
			e.logger.WithField("task", name).WithError(err).Debug("engine: task failed")
		}
		return v, err
	})
}
