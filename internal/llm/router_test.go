package llm

import (
	"context"
	"testing"
	"time"
)

type fakeBackend struct {
	calls   int
	resp    ChatResponse
	err     error
	lastCtx context.Context
}

func (f *fakeBackend) Complete(ctx context.Context, bundle ClientBundle, messages []Message, tools []Tool) (ChatResponse, error) {
	f.calls++
	f.lastCtx = ctx
	return f.resp, f.err
}

func TestNewRouterRequiresDefaultBundle(t *testing.T) {
	_, err := NewRouter(map[TaskKind]ClientBundle{
		TaskPlanner: {Backend: BackendOpenAI},
	})
	if err == nil {
		t.Fatalf("expected error when no default bundle is configured")
	}
}

func TestRouterFallsBackToDefaultBundle(t *testing.T) {
	r, err := NewRouter(map[TaskKind]ClientBundle{
		TaskDefault: {Backend: BackendOpenAI, Model: "default-model"},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	got := r.bundleFor(TaskNarrator)
	if got.Model != "default-model" {
		t.Fatalf("expected fallback to default bundle, got %+v", got)
	}
}

func TestRouterChatDispatchesToFakeBackend(t *testing.T) {
	r, err := NewRouter(map[TaskKind]ClientBundle{
		TaskDefault: {Backend: BackendOpenAI, Model: "m"},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	fb := &fakeBackend{resp: ChatResponse{Choices: []Choice{{Message: Message{Content: "hi"}}}}}
	r.backends[BackendOpenAI] = fb

	resp, err := r.Chat(context.Background(), TaskDefault, []Message{{Role: "user", Content: "hello"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if fb.calls != 1 {
		t.Fatalf("expected backend to be called once, got %d", fb.calls)
	}
	if resp.FirstText() != "hi" {
		t.Fatalf("unexpected response text: %q", resp.FirstText())
	}
}

func TestRouterChatUnknownBackend(t *testing.T) {
	r, err := NewRouter(map[TaskKind]ClientBundle{
		TaskDefault: {Backend: BackendKind("unknown")},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	_, err = r.Chat(context.Background(), TaskDefault, nil, nil)
	if err == nil {
		t.Fatalf("expected error for unregistered backend kind")
	}
}

func TestRouterChatRespectsBundleTimeout(t *testing.T) {
	r, err := NewRouter(map[TaskKind]ClientBundle{
		TaskDefault: {Backend: BackendOpenAI, Timeout: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	fb := &fakeBackend{err: context.DeadlineExceeded}
	r.backends[BackendOpenAI] = fb

	_, err = r.Chat(context.Background(), TaskDefault, nil, nil)
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if _, ok := fb.lastCtx.Deadline(); !ok {
		t.Fatalf("expected the bundle timeout to put a deadline on the backend call")
	}
}
