package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pgagents/pgagents/internal/agent"
	"github.com/pgagents/pgagents/internal/llm"
	"github.com/pgagents/pgagents/internal/llm/llmtest"
)

type fakeParticipant struct {
	name    string
	reply   string
	tokens  int
	handoff string
	err     error
	seen    [][]agent.Message
}

func (f *fakeParticipant) Name() string {
	return f.name
}

func (f *fakeParticipant) Run(_ context.Context, conversation []agent.Message) (agent.Result, error) {
	f.seen = append(f.seen, append([]agent.Message(nil), conversation...))
	if f.err != nil {
		return agent.Result{}, f.err
	}
	result := agent.Result{Text: f.reply, Usage: llm.Usage{TotalTokens: f.tokens}, Handoff: f.handoff}
	if f.reply != "" {
		result.Messages = []agent.Message{{Role: llm.RoleAssistant, AuthorName: f.name, Text: f.reply}}
	}
	return result, nil
}

func collect(s *Stream) []Event {
	var events []Event
	for event := range s.Events() {
		events = append(events, event)
	}
	return events
}

func TestSequentialPassesConversationForward(t *testing.T) {
	first := &fakeParticipant{name: "first", reply: "schema is products", tokens: 3}
	second := &fakeParticipant{name: "second", reply: "12 widgets", tokens: 4}

	stream := NewSequential(first, second).Run(context.Background(), []agent.Message{agent.UserMessage("how many widgets?")})
	events := collect(stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	var kinds []string
	for _, event := range events {
		kinds = append(kinds, event.Kind.String()+":"+event.Executor)
	}
	want := "executor_invoked:first,other:first,executor_invoked:second,other:second,output:"
	if strings.Join(kinds, ",") != want {
		t.Fatalf("events = %v", kinds)
	}
	if len(second.seen) != 1 || len(second.seen[0]) != 2 || second.seen[0][1].Text != "schema is products" {
		t.Fatalf("second saw %#v", second.seen)
	}
	output := events[len(events)-1].Messages
	if len(output) != 3 || output[2].Author() != "second" {
		t.Fatalf("output = %#v", output)
	}
	if completed, ok := events[1].Payload.(ExecutorCompleted); !ok || completed.Usage.TotalTokens != 3 {
		t.Fatalf("payload = %#v", events[1].Payload)
	}
}

func TestSequentialStopsOnFirstFailure(t *testing.T) {
	first := &fakeParticipant{name: "first", err: errors.New("model unavailable")}
	second := &fakeParticipant{name: "second", reply: "never"}

	stream := NewSequential(first, second).Run(context.Background(), []agent.Message{agent.UserMessage("q")})
	events := collect(stream)
	if err := stream.Err(); err == nil || err.Error() != "model unavailable" {
		t.Fatalf("Err() = %v", err)
	}
	if len(second.seen) != 0 {
		t.Fatal("second participant should not run")
	}
	if len(events) != 1 || events[0].Kind != EventExecutorInvoked {
		t.Fatalf("events = %v", events)
	}
}

func TestSequentialWithoutParticipantsFails(t *testing.T) {
	stream := NewSequential().Run(context.Background(), nil)
	collect(stream)
	if stream.Err() == nil {
		t.Fatal("expected error")
	}
}

func TestFinalConversationKeepsLastBatch(t *testing.T) {
	first := &fakeParticipant{name: "first", reply: "a"}
	second := &fakeParticipant{name: "second", reply: "b"}

	final, err := FinalConversation(NewSequential(first, second).Run(context.Background(), []agent.Message{agent.UserMessage("q")}))
	if err != nil {
		t.Fatalf("FinalConversation() error = %v", err)
	}
	var authors []string
	for _, msg := range final {
		authors = append(authors, msg.Author())
	}
	if strings.Join(authors, ",") != "user,first,second" {
		t.Fatalf("authors = %v", authors)
	}
}

func TestFinalConversationReturnsLastInvocationOnFailure(t *testing.T) {
	first := &fakeParticipant{name: "first", reply: "a"}
	second := &fakeParticipant{name: "second", err: errors.New("boom")}

	final, err := FinalConversation(NewSequential(first, second).Run(context.Background(), []agent.Message{agent.UserMessage("q")}))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(final) != 2 || final[1].Text != "a" {
		t.Fatalf("final = %#v", final)
	}
}

func TestRouterRunsChosenSpecialist(t *testing.T) {
	support := &fakeParticipant{name: "support", handoff: "service"}
	schema := &fakeParticipant{name: "schema", reply: "schema"}
	service := &fakeParticipant{name: "service", reply: "rows"}

	final, err := FinalConversation(NewRouter(support, schema, service).Run(context.Background(), []agent.Message{agent.UserMessage("q")}))
	if err != nil {
		t.Fatalf("FinalConversation() error = %v", err)
	}
	if len(schema.seen) != 0 || len(service.seen) != 1 {
		t.Fatalf("schema runs = %d service runs = %d", len(schema.seen), len(service.seen))
	}
	if len(final) != 2 || final[1].Author() != "service" {
		t.Fatalf("final = %#v", final)
	}
}

func TestRouterWithoutHandoffKeepsSupportReply(t *testing.T) {
	support := &fakeParticipant{name: "support", reply: "I can only help with database questions."}
	service := &fakeParticipant{name: "service", reply: "rows"}

	final, err := FinalConversation(NewRouter(support, service).Run(context.Background(), []agent.Message{agent.UserMessage("tell me a joke")}))
	if err != nil {
		t.Fatalf("FinalConversation() error = %v", err)
	}
	if len(service.seen) != 0 {
		t.Fatal("service should not run")
	}
	if len(final) != 2 || final[1].Author() != "support" {
		t.Fatalf("final = %#v", final)
	}
}

func TestRouterRejectsUnknownHandoff(t *testing.T) {
	support := &fakeParticipant{name: "support", handoff: "ghost"}
	stream := NewRouter(support).Run(context.Background(), []agent.Message{agent.UserMessage("q")})
	collect(stream)
	if err := stream.Err(); err == nil || !strings.Contains(err.Error(), `"ghost"`) {
		t.Fatalf("Err() = %v", err)
	}
}

func TestRouterWithRealAgentsUsesHandoffTool(t *testing.T) {
	model := llmtest.NewRouter()
	supportCalls := model.On(SupportInstructions, llmtest.CallTool("h1", agent.HandoffToolName(SchemaAgentName), `{}`, 5))
	model.On(SchemaInstructions,
		llmtest.CallTool("c1", "get_schema_info", `{}`, 7),
		llmtest.Reply("products has product_id, name and price.", 11),
	)

	agents := NewAgents(model, &fakeGateway{})
	final, err := FinalConversation(agents.Route().Run(context.Background(), []agent.Message{agent.UserMessage("what tables exist?")}))
	if err != nil {
		t.Fatalf("FinalConversation() error = %v", err)
	}
	if len(final) != 2 || final[1].Author() != SchemaAgentName {
		t.Fatalf("final = %#v", final)
	}

	calls := supportCalls.Calls()
	if len(calls) != 1 {
		t.Fatalf("support calls = %d", len(calls))
	}
	var offered []string
	for _, tool := range calls[0].Tools {
		offered = append(offered, tool.Name)
	}
	if strings.Join(offered, ",") != "handoff_to_schema_agent,handoff_to_service_agent" {
		t.Fatalf("offered tools = %v", offered)
	}
}

func TestEventKindText(t *testing.T) {
	text, err := EventOutput.MarshalText()
	if err != nil || string(text) != "output" {
		t.Fatalf("MarshalText() = %q, %v", text, err)
	}
	if EventKind(42).String() != "other" {
		t.Fatalf("String() = %q", EventKind(42).String())
	}
}
