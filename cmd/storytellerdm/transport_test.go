package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

func TestHTTPEngineClientDispatchAsyncPostsCommand(t *testing.T) {
	var received storyteller.CommandEnvelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode command: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newHTTPEngineClient(server.URL, "", time.Second)
	cmd := storyteller.NewCommandEnvelope(func() string { return "cmd-1" }, "room-1", storyteller.CommandPublicChat, json.RawMessage(`{"message":"hi"}`))

	if err := client.DispatchAsync(context.Background(), cmd); err != nil {
		t.Fatalf("DispatchAsync: %v", err)
	}
	if received.RoomID != "room-1" || received.Type != storyteller.CommandPublicChat {
		t.Fatalf("unexpected received command: %+v", received)
	}
}

func TestHTTPEngineClientDispatchAsyncSurfacesErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newHTTPEngineClient(server.URL, "", time.Second)
	cmd := storyteller.NewCommandEnvelope(func() string { return "cmd-1" }, "room-1", storyteller.CommandPublicChat, nil)

	if err := client.DispatchAsync(context.Background(), cmd); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestHTTPEngineClientStateDecodesSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(engineState{
			PhaseValue:    storyteller.PhaseDay,
			DayCountValue: 2,
			PlayersValue:  []storyteller.PlayerState{{ID: "p1", Name: "Alice", Alive: true}},
			LastSeqValue:  42,
		})
	}))
	defer server.Close()

	client := newHTTPEngineClient("", server.URL, time.Second)
	state, err := client.State(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Phase() != storyteller.PhaseDay || state.DayCount() != 2 || state.LastSeq() != 42 {
		t.Fatalf("unexpected state: phase=%v day=%d lastSeq=%d", state.Phase(), state.DayCount(), state.LastSeq())
	}
	if len(state.Players()) != 1 || state.Players()[0].ID != "p1" {
		t.Fatalf("unexpected players: %+v", state.Players())
	}
}

func TestEventHandlerDispatchesDecodedEvent(t *testing.T) {
	var gotEvent storyteller.RawEvent
	var gotState storyteller.EngineState
	called := false
	handler := eventHandler(func(ctx context.Context, event storyteller.RawEvent, state storyteller.EngineState) {
		called = true
		gotEvent = event
		gotState = state
	})

	body, _ := json.Marshal(eventEnvelope{
		Event: storyteller.RawEvent{RoomID: "room-1", Type: storyteller.EventGameStarted, EventID: "e1"},
		State: &engineState{PhaseValue: storyteller.PhaseLobby},
	})
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !called {
		t.Fatal("expected the callback to be invoked")
	}
	if gotEvent.RoomID != "room-1" || gotEvent.Type != storyteller.EventGameStarted {
		t.Fatalf("unexpected event: %+v", gotEvent)
	}
	if gotState == nil || gotState.Phase() != storyteller.PhaseLobby {
		t.Fatalf("unexpected state: %+v", gotState)
	}
}

func TestEventHandlerRejectsNonPost(t *testing.T) {
	handler := eventHandler(func(ctx context.Context, event storyteller.RawEvent, state storyteller.EngineState) {
		t.Fatal("callback should not be invoked for a GET request")
	})
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
