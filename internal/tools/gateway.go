package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgagents/pgagents/internal/gateway"
	"github.com/pgagents/pgagents/internal/llm"
)

const (
	ExecuteQueryTool   = "execute_query"
	SchemaInfoTool     = "get_schema_info"
	ProductInfoTool    = "get_product_info"
	NoProductInfoFound = "No product information found."
)

type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, statement string) gateway.Outcome
}

type SchemaReader interface {
	SchemaInfo(ctx context.Context) ([]gateway.ColumnInfo, error)
}

type ProductFinder interface {
	ProductInfo(ctx context.Context, query gateway.ProductQuery) ([]gateway.Product, bool)
}

// Gateway is everything the database tools need; *gateway.Gateway satisfies
// it.
type Gateway interface {
	QueryExecutor
	SchemaReader
	ProductFinder
}

type ExecuteQueryArgs struct {
	Query string `json:"query"`
}

type ProductInfoArgs struct {
	ProductName *string `json:"product_name"`
	ProductID   *int64  `json:"product_id"`
}

func RegisterQueryTool(registry *Registry, executor QueryExecutor) {
	tool := llm.Tool{
		Name:        ExecuteQueryTool,
		Description: "Execute a read-only SQL SELECT query against the PostgreSQL database and return the rows as JSON.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "A single SQL SELECT statement",
				},
			},
			"required": []string{"query"},
		},
	}

	registry.Register(tool, func(ctx context.Context, args string) (string, error) {
		var params ExecuteQueryArgs
		if err := decodeArgs(args, &params); err != nil {
			return "", err
		}
		outcome := executor.ExecuteQuery(ctx, params.Query)
		return encodeResult(outcome.Values())
	})
}

func RegisterSchemaTool(registry *Registry, reader SchemaReader) {
	tool := llm.Tool{
		Name:        SchemaInfoTool,
		Description: "Get the database schema: every table column with its data type, nullability, constraints and foreign key references.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}

	registry.Register(tool, func(ctx context.Context, _ string) (string, error) {
		columns, err := reader.SchemaInfo(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read schema: %w", err)
		}
		encoded, err := json.MarshalIndent(columns, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode schema: %w", err)
		}
		return string(encoded), nil
	})
}

func RegisterProductTool(registry *Registry, finder ProductFinder) {
	tool := llm.Tool{
		Name:        ProductInfoTool,
		Description: "Get product information by product name (case-insensitive) or product id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"product_name": map[string]any{
					"type":        "string",
					"description": "The product name",
				},
				"product_id": map[string]any{
					"type":        "integer",
					"description": "The product id",
				},
			},
		},
	}

	registry.Register(tool, func(ctx context.Context, args string) (string, error) {
		var params ProductInfoArgs
		if err := decodeArgs(args, &params); err != nil {
			return "", err
		}
		products, ok := finder.ProductInfo(ctx, gateway.ProductQuery{Name: params.ProductName, ID: params.ProductID})
		if !ok {
			return NoProductInfoFound, nil
		}
		return encodeResult(products)
	})
}

// RegisterGatewayTools registers all three database tools.
func RegisterGatewayTools(registry *Registry, gw Gateway) {
	RegisterSchemaTool(registry, gw)
	RegisterQueryTool(registry, gw)
	RegisterProductTool(registry, gw)
}

func decodeArgs(args string, dst any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(args), dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func encodeResult(value any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(encoded), nil
}
