package llm

import (
	"context"
	"fmt"
	"time"
)

// Router maps a TaskKind to a ClientBundle and a concrete backend and
// exposes one Chat primitive for every caller. Both lookups are map reads
// made on each Chat call.
type Router struct {
	bundles  map[TaskKind]ClientBundle
	backends map[BackendKind]chatBackend
}

// NewRouter builds a Router from a map of task kind to client bundle. A
// TaskDefault entry is required; any TaskKind not present in bundles falls
// back to it when Chat resolves the bundle.
func NewRouter(bundles map[TaskKind]ClientBundle) (*Router, error) {
	if _, ok := bundles[TaskDefault]; !ok {
		return nil, fmt.Errorf("llm: router requires a %q bundle", TaskDefault)
	}
	resolved := make(map[TaskKind]ClientBundle, len(bundles))
	for k, v := range bundles {
		resolved[k] = v
	}
	return &Router{
		bundles: resolved,
		backends: map[BackendKind]chatBackend{
			BackendOpenAI:    openAIBackend{},
			BackendAnthropic: anthropicBackend{},
		},
	}, nil
}

func (r *Router) bundleFor(task TaskKind) ClientBundle {
	if b, ok := r.bundles[task]; ok {
		return b
	}
	return r.bundles[TaskDefault]
}

// Chat resolves the bundle and backend for task, enforces the shorter of
// the caller's context deadline and the bundle's own timeout, and
// dispatches to the backend. The router never retries; the orchestrator's
// Execute step owns retry/backoff.
func (r *Router) Chat(ctx context.Context, task TaskKind, messages []Message, tools []Tool) (ChatResponse, error) {
	bundle := r.bundleFor(task)
	backend, ok := r.backends[bundle.Backend]
	if !ok {
		return ChatResponse{}, fmt.Errorf("llm: no backend registered for %q", bundle.Backend)
	}

	callCtx := ctx
	if bundle.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, bundle.Timeout)
		defer cancel()
	}

	resp, err := backend.Complete(callCtx, bundle, messages, tools)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llm: chat for task %q: %w", task, err)
	}
	return resp, nil
}

// deadline reports the effective deadline for a task's next call, the
// shorter of ctx's deadline (if any) and the bundle's configured timeout,
// computed the same way Chat bounds its call. It is unexported, so only
// code inside package llm can use it.
func (r *Router) deadline(ctx context.Context, task TaskKind) (time.Time, bool) {
	bundle := r.bundleFor(task)
	ctxDeadline, hasCtxDeadline := ctx.Deadline()
	if bundle.Timeout <= 0 {
		return ctxDeadline, hasCtxDeadline
	}
	bundleDeadline := time.Now().Add(bundle.Timeout)
	if hasCtxDeadline && ctxDeadline.Before(bundleDeadline) {
		return ctxDeadline, true
	}
	return bundleDeadline, true
}
