package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// engineState is the JSON-decoded shape returned by the engine's state
// endpoint, implementing storyteller.EngineState directly.
type engineState struct {
	PhaseValue      storyteller.Phase           `json:"phase"`
	DayCountValue   int                         `json:"dayCount"`
	PlayersValue    []storyteller.PlayerState   `json:"players"`
	NominationValue *storyteller.NominationState `json:"nomination,omitempty"`
	LastSeqValue    int64                       `json:"lastSeq"`
}

func (s *engineState) Phase() storyteller.Phase                     { return s.PhaseValue }
func (s *engineState) DayCount() int                                { return s.DayCountValue }
func (s *engineState) Players() []storyteller.PlayerState           { return s.PlayersValue }
func (s *engineState) NominationQueue() *storyteller.NominationState { return s.NominationValue }
func (s *engineState) LastSeq() int64                                { return s.LastSeqValue }

var _ storyteller.EngineState = (*engineState)(nil)

// httpEngineClient talks to the external game engine over plain HTTP: it
// posts outbound commands to CommandsURL and fetches the current room
// snapshot from StateURL. Both are webhook-style endpoints the engine
// exposes; there is no gRPC surface on either side of this boundary.
type httpEngineClient struct {
	client      *http.Client
	commandsURL string
	stateURL    string
}

func newHTTPEngineClient(commandsURL, stateURL string, timeout time.Duration) *httpEngineClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpEngineClient{
		client:      &http.Client{Timeout: timeout},
		commandsURL: commandsURL,
		stateURL:    stateURL,
	}
}

// DispatchAsync posts cmd as JSON to commandsURL. "Async" describes the
// caller's contract (fire-and-forget from the agent's perspective, per
// storyteller.CommandDispatcher); the HTTP call itself still blocks for the
// configured timeout so a dead engine surfaces as an error rather than a
// silently dropped command.
func (c *httpEngineClient) DispatchAsync(ctx context.Context, cmd storyteller.CommandEnvelope) error {
	if c.commandsURL == "" {
		return fmt.Errorf("transport: no commands URL configured")
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("transport: marshal command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.commandsURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: dispatch command: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: engine returned status %d for command %s", resp.StatusCode, cmd.Type)
	}
	return nil
}

// State fetches the engine's current snapshot for roomID, implementing
// storyteller.StateGetter.
func (c *httpEngineClient) State(ctx context.Context, roomID string) (storyteller.EngineState, error) {
	if c.stateURL == "" {
		return nil, fmt.Errorf("transport: no state URL configured")
	}
	url := fmt.Sprintf("%s?roomId=%s", c.stateURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build state request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: fetch state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transport: engine returned status %d for state", resp.StatusCode)
	}
	var state engineState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("transport: decode state: %w", err)
	}
	return &state, nil
}

// eventEnvelope is the JSON body the engine POSTs to /events: a raw event
// plus the state snapshot taken alongside it.
type eventEnvelope struct {
	Event storyteller.RawEvent `json:"event"`
	State *engineState         `json:"state,omitempty"`
}

// eventCallback is the shape of ingress.(*Ingress).OnEvent, the only
// function the inbound HTTP handler needs to call.
type eventCallback func(ctx context.Context, event storyteller.RawEvent, state storyteller.EngineState)

// eventHandler builds the inbound HTTP handler the engine calls once per
// event. onEvent is invoked synchronously; the handler responds 202 as soon
// as it returns since ingress.OnEvent never surfaces an error to its caller.
func eventHandler(onEvent eventCallback) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var env eventEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, fmt.Sprintf("decode event: %v", err), http.StatusBadRequest)
			return
		}
		var state storyteller.EngineState
		if env.State != nil {
			state = env.State
		}
		onEvent(r.Context(), env.Event, state)
		w.WriteHeader(http.StatusAccepted)
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
