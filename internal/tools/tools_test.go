package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pgagents/pgagents/internal/gateway"
	"github.com/pgagents/pgagents/internal/llm"
)

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(llm.Tool{Name: "echo"}, func(_ context.Context, args string) (string, error) {
		return "result:" + args, nil
	})

	result, err := r.Execute(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != "result:hello" {
		t.Fatalf("Execute() = %q", result)
	}
	if !r.Has("echo") || r.Has("missing") {
		t.Fatal("Has() mismatch")
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	_, err := NewRegistry().Execute(context.Background(), "nonexistent", "{}")
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestRegistryReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(llm.Tool{Name: "t", Description: "old"}, func(context.Context, string) (string, error) { return "old", nil })
	r.Register(llm.Tool{Name: "t", Description: "new"}, func(context.Context, string) (string, error) { return "new", nil })

	if len(r.Tools()) != 1 || r.Tools()[0].Description != "new" {
		t.Fatalf("Tools() = %#v", r.Tools())
	}
	if got, _ := r.Execute(context.Background(), "t", ""); got != "new" {
		t.Fatalf("Execute() = %q", got)
	}
}

func TestGatewayToolsRegistered(t *testing.T) {
	r := NewRegistry()
	RegisterGatewayTools(r, &fakeGateway{})

	var names []string
	for _, tool := range r.Tools() {
		names = append(names, tool.Name)
	}
	if strings.Join(names, ",") != "get_schema_info,execute_query,get_product_info" {
		t.Fatalf("tools = %v", names)
	}
}

func TestExecuteQueryToolReturnsSentinelSequence(t *testing.T) {
	gw := &fakeGateway{outcome: gateway.Outcome{Kind: gateway.OutcomePolicyRejected, Message: gateway.ReadOnlyViolation}}
	r := NewRegistry()
	RegisterQueryTool(r, gw)

	result, err := r.Execute(context.Background(), ExecuteQueryTool, `{"query":"DROP TABLE products"}`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != `["Only read-only SELECT queries are allowed."]` {
		t.Fatalf("result = %s", result)
	}
	if gw.lastStatement != "DROP TABLE products" {
		t.Fatalf("statement = %q", gw.lastStatement)
	}
}

func TestExecuteQueryToolEncodesRows(t *testing.T) {
	gw := &fakeGateway{outcome: gateway.Outcome{Kind: gateway.OutcomeRows, Rows: []gateway.Row{{"name": "Widget", "price": 9.5}}}}
	r := NewRegistry()
	RegisterQueryTool(r, gw)

	result, err := r.Execute(context.Background(), ExecuteQueryTool, `{"query":"SELECT name, price FROM products"}`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(result), &rows); err != nil {
		t.Fatalf("decode result: %v (%s)", err, result)
	}
	if len(rows) != 1 || rows[0]["name"] != "Widget" || rows[0]["price"] != 9.5 {
		t.Fatalf("rows = %#v", rows)
	}
}

func TestExecuteQueryToolRejectsMalformedArguments(t *testing.T) {
	r := NewRegistry()
	RegisterQueryTool(r, &fakeGateway{})
	if _, err := r.Execute(context.Background(), ExecuteQueryTool, `{"query":`); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSchemaToolRendersIndentedJSON(t *testing.T) {
	fk := "FOREIGN KEY"
	gw := &fakeGateway{columns: []gateway.ColumnInfo{{TableSchema: "public", TableName: "orders", ColumnName: "product_id", DataType: "integer", IsNullable: "NO", ConstraintType: &fk}}}
	r := NewRegistry()
	RegisterSchemaTool(r, gw)

	result, err := r.Execute(context.Background(), SchemaInfoTool, "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(result, "\n  {") || !strings.Contains(result, `"constraint_type": "FOREIGN KEY"`) || !strings.Contains(result, `"referenced_table": null`) {
		t.Fatalf("result = %s", result)
	}
}

func TestSchemaToolSurfacesError(t *testing.T) {
	r := NewRegistry()
	RegisterSchemaTool(r, &fakeGateway{schemaErr: errors.New("permission denied")})
	if _, err := r.Execute(context.Background(), SchemaInfoTool, "{}"); err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestProductToolPassesParametersAndHandlesAbsence(t *testing.T) {
	gw := &fakeGateway{}
	r := NewRegistry()
	RegisterProductTool(r, gw)

	result, err := r.Execute(context.Background(), ProductInfoTool, `{}`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != NoProductInfoFound {
		t.Fatalf("result = %q", result)
	}
	if gw.lastProduct.Name != nil || gw.lastProduct.ID != nil {
		t.Fatalf("query = %#v", gw.lastProduct)
	}

	gw.products = []gateway.Product{{ProductID: 7, Name: "Widget", Inventory: 3, Price: 19.99}}
	result, err = r.Execute(context.Background(), ProductInfoTool, `{"product_name":"widget","product_id":7}`)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if *gw.lastProduct.Name != "widget" || *gw.lastProduct.ID != 7 {
		t.Fatalf("query = %#v", gw.lastProduct)
	}
	if !strings.Contains(result, `"product_id":7`) || !strings.Contains(result, `"category":null`) {
		t.Fatalf("result = %s", result)
	}
}

type fakeGateway struct {
	outcome       gateway.Outcome
	columns       []gateway.ColumnInfo
	schemaErr     error
	products      []gateway.Product
	lastStatement string
	lastProduct   gateway.ProductQuery
}

func (f *fakeGateway) ExecuteQuery(_ context.Context, statement string) gateway.Outcome {
	f.lastStatement = statement
	return f.outcome
}

func (f *fakeGateway) SchemaInfo(context.Context) ([]gateway.ColumnInfo, error) {
	return f.columns, f.schemaErr
}

func (f *fakeGateway) ProductInfo(_ context.Context, query gateway.ProductQuery) ([]gateway.Product, bool) {
	f.lastProduct = query
	if query.Name == nil && query.ID == nil {
		return nil, false
	}
	return f.products, true
}
