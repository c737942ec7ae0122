package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pgagents/pgagents/internal/agent"
	"github.com/pgagents/pgagents/internal/audit"
	"github.com/pgagents/pgagents/internal/gateway"
	"github.com/pgagents/pgagents/internal/llm/llmtest"
	"github.com/pgagents/pgagents/internal/testutil"
)

type fakeGateway struct {
	mu         sync.Mutex
	statements []string
	lookups    []gateway.ProductQuery
}

func (f *fakeGateway) ExecuteQuery(_ context.Context, statement string) gateway.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, statement)
	return gateway.Outcome{Kind: gateway.OutcomeRows, Rows: []gateway.Row{{"count": int64(12)}}}
}

func (f *fakeGateway) SchemaInfo(context.Context) ([]gateway.ColumnInfo, error) {
	return []gateway.ColumnInfo{{TableSchema: "public", TableName: "products", ColumnName: "name", DataType: "text", IsNullable: "NO"}}, nil
}

func (f *fakeGateway) ProductInfo(_ context.Context, query gateway.ProductQuery) ([]gateway.Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, query)
	return []gateway.Product{{ProductID: 1, Name: "Widget", Inventory: 12, Price: 9.99}}, true
}

type recordingSink struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (s *recordingSink) Emit(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return s.err
}

var fixedNow = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

func newRunner(t *testing.T, model *llmtest.Router, gw *fakeGateway, sink audit.Sink) *Runner {
	t.Helper()
	return &Runner{
		Model:   model,
		Gateway: gw,
		Sink:    sink,
		Logger:  testutil.NewTestLogger(t),
		Clock:   func() time.Time { return fixedNow },
	}
}

func TestRunWorkflowSequentialProducesHealthyRecord(t *testing.T) {
	model := llmtest.NewRouter()
	model.On(SchemaInstructions,
		llmtest.CallTool("c1", "get_schema_info", `{}`, 10),
		llmtest.Reply("Table products(name text).", 20),
	)
	model.On(ServiceInstructions,
		llmtest.CallTool("c2", "execute_query", `{"query":"SELECT COUNT(*) AS count FROM products"}`, 30),
		llmtest.Reply("There are 12 products.", 40),
	)
	gw := &fakeGateway{}
	sink := &recordingSink{}
	runner := newRunner(t, model, gw, sink)

	wf, err := runner.Workflow("sequential")
	if err != nil {
		t.Fatalf("Workflow() error = %v", err)
	}
	var observed []EventKind
	final, record, err := runner.RunWorkflow(context.Background(), wf, "How many products are there?", func(e Event) {
		observed = append(observed, e.Kind)
	})
	if err != nil {
		t.Fatalf("RunWorkflow() error = %v", err)
	}

	if len(observed) != 5 || observed[4] != EventOutput {
		t.Fatalf("observed = %v", observed)
	}
	var authors []string
	for _, msg := range final {
		authors = append(authors, msg.Author())
	}
	if strings.Join(authors, ",") != "user,schema_agent,service_agent" {
		t.Fatalf("authors = %v", authors)
	}
	if record.Status != audit.StatusHealthy || record.Workflow != SequentialName {
		t.Fatalf("record = %#v", record)
	}
	if record.Response != "There are 12 products." || record.TotalTokens != 100 {
		t.Fatalf("record = %#v", record)
	}
	if record.UserMessage != "How many products are there?" || record.EventTime != "2026-06-01T12:00:00Z" {
		t.Fatalf("record = %#v", record)
	}
	if len(gw.statements) != 1 || gw.statements[0] != "SELECT COUNT(*) AS count FROM products" {
		t.Fatalf("statements = %#v", gw.statements)
	}
	if len(sink.records) != 1 || sink.records[0].RunID != record.RunID {
		t.Fatalf("sink records = %#v", sink.records)
	}
}

func TestRunWorkflowFirstAgentFailureYieldsErrorRecord(t *testing.T) {
	model := llmtest.NewRouter()
	model.On(SchemaInstructions, llmtest.Fail(errors.New("deployment not found")))
	serviceCalls := model.On(ServiceInstructions, llmtest.Reply("unreachable", 1))
	sink := &recordingSink{}
	runner := newRunner(t, model, &fakeGateway{}, sink)

	wf, err := runner.Workflow("sequential")
	if err != nil {
		t.Fatalf("Workflow() error = %v", err)
	}
	_, record, err := runner.RunWorkflow(context.Background(), wf, "q", nil)
	if err == nil {
		t.Fatal("expected run error")
	}
	if record.Status != audit.StatusError {
		t.Fatalf("Status = %q", record.Status)
	}
	if !strings.Contains(record.Response, "deployment not found") {
		t.Fatalf("Response = %q", record.Response)
	}
	if record.TotalTokens != 0 {
		t.Fatalf("TotalTokens = %d", record.TotalTokens)
	}
	if len(serviceCalls.Calls()) != 0 {
		t.Fatal("service agent should not run")
	}
	if len(sink.records) != 1 || sink.records[0].Status != audit.StatusError {
		t.Fatalf("sink records = %#v", sink.records)
	}
}

func TestRunWorkflowRequiresWorkflow(t *testing.T) {
	runner := newRunner(t, llmtest.NewRouter(), &fakeGateway{}, nil)
	_, record, err := runner.RunWorkflow(context.Background(), nil, "q", nil)
	if err == nil || record.Status != audit.StatusError {
		t.Fatalf("record = %#v err = %v", record, err)
	}
}

func TestRunAgentLooksUpProduct(t *testing.T) {
	model := llmtest.NewRouter()
	calls := model.On(ProductInfoInstructions,
		llmtest.CallTool("c1", "get_product_info", `{"product_name":"WIDGET"}`, 15),
		llmtest.Reply("Widget costs 9.99 and 12 are in stock.", 25),
	)
	gw := &fakeGateway{}
	sink := &recordingSink{}
	runner := newRunner(t, model, gw, sink)

	result, record, err := runner.RunAgent(context.Background(), "How much is a widget?")
	if err != nil {
		t.Fatalf("RunAgent() error = %v", err)
	}
	if result.Text != "Widget costs 9.99 and 12 are in stock." {
		t.Fatalf("Text = %q", result.Text)
	}
	if record.Status != audit.StatusHealthy || record.TotalTokens != 40 || record.Response != result.Text {
		t.Fatalf("record = %#v", record)
	}
	if len(gw.lookups) != 1 || gw.lookups[0].Name == nil || *gw.lookups[0].Name != "WIDGET" {
		t.Fatalf("lookups = %#v", gw.lookups)
	}

	recorded := calls.Calls()
	if len(recorded) == 0 || len(recorded[0].Tools) != 1 || recorded[0].Tools[0].Name != "get_product_info" {
		t.Fatalf("product agent tools = %#v", recorded)
	}
	if len(sink.records) != 1 {
		t.Fatalf("sink records = %d", len(sink.records))
	}
}

func TestRunAgentFailureReturnsErrorRecordAndError(t *testing.T) {
	model := llmtest.NewRouter()
	model.On(ProductInfoInstructions, llmtest.Fail(errors.New("rate limited")))
	sink := &recordingSink{err: errors.New("sink down")}
	runner := newRunner(t, model, &fakeGateway{}, sink)

	result, record, err := runner.RunAgent(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v", err)
	}
	if record.Status != audit.StatusError || record.TotalTokens != 0 || !strings.Contains(record.Response, "rate limited") {
		t.Fatalf("record = %#v", record)
	}
	if len(result.Messages) != 0 {
		t.Fatalf("result = %#v", result)
	}
	if len(sink.records) != 1 {
		t.Fatalf("sink records = %d", len(sink.records))
	}
}

func TestRunAgentWithoutGatewayFails(t *testing.T) {
	runner := &Runner{Model: llmtest.NewRouter()}
	_, record, err := runner.RunAgent(context.Background(), "q")
	if err == nil || record.Status != audit.StatusError {
		t.Fatalf("record = %#v err = %v", record, err)
	}
}

func TestWorkflowByName(t *testing.T) {
	runner := newRunner(t, llmtest.NewRouter(), &fakeGateway{}, nil)
	for name, want := range map[string]string{"sequential": SequentialName, " Route ": RouteName} {
		wf, err := runner.Workflow(name)
		if err != nil {
			t.Fatalf("Workflow(%q) error = %v", name, err)
		}
		if wf.Name() != want {
			t.Fatalf("Workflow(%q).Name() = %q", name, wf.Name())
		}
	}
	if _, err := runner.Workflow("group-chat"); !errors.Is(err, ErrUnknownWorkflow) {
		t.Fatalf("Workflow(group-chat) error = %v", err)
	}
}

func TestAgentOptionsApplyToEveryAgent(t *testing.T) {
	model := llmtest.NewRouter()
	model.On(ProductInfoInstructions,
		llmtest.CallTool("c1", "get_product_info", `{"product_id":1}`, 1),
		llmtest.CallTool("c2", "get_product_info", `{"product_id":1}`, 1),
	)
	runner := newRunner(t, model, &fakeGateway{}, nil)
	runner.AgentOptions = []agent.Option{agent.WithMaxIterations(1)}

	_, record, err := runner.RunAgent(context.Background(), "q")
	if !errors.Is(err, agent.ErrMaxToolIterations) {
		t.Fatalf("err = %v", err)
	}
	if record.Status != audit.StatusError {
		t.Fatalf("record = %#v", record)
	}
}
