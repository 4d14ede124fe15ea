package subagents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clocktower/storytellerdm/internal/llm"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

const rulesTopK = 3

// chatClient is the narrow seam every sub-agent that calls the model
// router depends on, satisfied by *llm.Router and by test fakes.
type chatClient interface {
	Chat(ctx context.Context, task llm.TaskKind, messages []llm.Message, tools []llm.Tool) (llm.ChatResponse, error)
}

// Rules answers rule questions and disputes by grounding a model response
// in the rules index, citing retrieved snippets with numeric anchors. If
// the model call fails, it falls back to posting the retrieved snippets
// verbatim so players are never left without an answer.
type Rules struct {
	newID     func() string
	retriever storyteller.Retriever
	router    chatClient
}

// NewRules builds a Rules sub-agent. retriever and router are required
// collaborators; Execute is a no-op when neither a rule question nor a
// dispute is present in the recent events.
func NewRules(newID func() string, retriever storyteller.Retriever, router chatClient) *Rules {
	return &Rules{newID: newID, retriever: retriever, router: router}
}

func (r *Rules) Name() string { return "rules" }

func (r *Rules) Description() string {
	return "Answers rule questions and disputes, citing the rules index."
}

func (r *Rules) Execute(ctx context.Context, agentCtx storyteller.AgentContext) (*storyteller.AgentOutput, error) {
	question := latestQuestion(agentCtx.RecentEvents)
	if question == "" {
		return &storyteller.AgentOutput{Confidence: 1.0}, nil
	}

	var chunks []storyteller.RetrievedChunk
	if r.retriever != nil {
		found, err := r.retriever.Retrieve(ctx, question, rulesTopK)
		if err == nil {
			chunks = found
		}
	}

	answer, ok := r.answerFromModel(ctx, question, chunks)
	if !ok {
		answer = fallbackAnswer(chunks)
	}
	if answer == "" {
		return &storyteller.AgentOutput{Confidence: 0.3}, nil
	}

	action, err := buildAction(r.newID, ToolSendPublicMessage, map[string]string{
		"message": answer,
		"from":    "storyteller",
	}, 15)
	if err != nil {
		return nil, err
	}
	return &storyteller.AgentOutput{
		Actions:    []storyteller.Action{action},
		Message:    "answered a rule question",
		Confidence: 0.9,
	}, nil
}

func (r *Rules) answerFromModel(ctx context.Context, question string, chunks []storyteller.RetrievedChunk) (string, bool) {
	if r.router == nil {
		return "", false
	}
	messages := []llm.Message{
		{Role: "system", Content: "You are the Storyteller. Answer the rules question using only the numbered citations provided. Cite sources like [1], [2]."},
		{Role: "user", Content: buildCitationPrompt(question, chunks)},
	}
	resp, err := r.router.Chat(ctx, llm.TaskRules, messages, nil)
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(resp.FirstText())
	if text == "" {
		return "", false
	}
	return text, true
}

func buildCitationPrompt(question string, chunks []storyteller.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nSources:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Content)
	}
	return b.String()
}

func fallbackAnswer(chunks []storyteller.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, c.Content)
	}
	return b.String()
}

// latestQuestion returns the payload text of the most recent rule_question
// or dispute event, or "" if none is present.
func latestQuestion(events []storyteller.Event) string {
	matches := eventsOfType(events, storyteller.EventRuleQuestion, storyteller.EventDispute)
	if len(matches) == 0 {
		return ""
	}
	var payload struct {
		Text string `json:"text"`
	}
	last := matches[len(matches)-1]
	if err := json.Unmarshal(last.Payload, &payload); err != nil {
		return ""
	}
	return payload.Text
}

var _ storyteller.SubAgent = (*Rules)(nil)
