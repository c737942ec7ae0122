package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/pgagents/pgagents/internal/observability"
)

// ColumnInfo describes one column and, when it takes part in one, the
// constraint it belongs to and the column a foreign key points at.
type ColumnInfo struct {
	TableSchema      string  `json:"table_schema"`
	TableName        string  `json:"table_name"`
	ColumnName       string  `json:"column_name"`
	DataType         string  `json:"data_type"`
	IsNullable       string  `json:"is_nullable"`
	ConstraintType   *string `json:"constraint_type"`
	ConstraintName   *string `json:"constraint_name"`
	ReferencedTable  *string `json:"referenced_table"`
	ReferencedColumn *string `json:"referenced_column"`
}

const schemaInfoQuery = `SELECT
    cols.table_schema,
    cols.table_name,
    cols.column_name,
    cols.data_type,
    cols.is_nullable,
    cons.constraint_type,
    cons.constraint_name,
    fk.references_table AS referenced_table,
    fk.references_column AS referenced_column
FROM information_schema.columns cols
LEFT JOIN information_schema.key_column_usage kcu
    ON cols.table_schema = kcu.table_schema
    AND cols.table_name = kcu.table_name
    AND cols.column_name = kcu.column_name
LEFT JOIN information_schema.table_constraints cons
    ON kcu.table_schema = cons.table_schema
    AND kcu.table_name = cons.table_name
    AND kcu.constraint_name = cons.constraint_name
LEFT JOIN (
    SELECT
        rc.constraint_name,
        kcu.table_name AS references_table,
        kcu.column_name AS references_column
    FROM information_schema.referential_constraints rc
    JOIN information_schema.key_column_usage kcu
        ON rc.unique_constraint_name = kcu.constraint_name
) fk ON cons.constraint_name = fk.constraint_name
WHERE cols.table_schema = $1
ORDER BY cols.table_schema, cols.table_name, cols.ordinal_position`

// SchemaInfo reads the column descriptor of the configured namespace. It is
// never cached; every call reflects the live catalog. Rows keep the server's
// ORDER BY, so table names follow the database collation.
func (g *Gateway) SchemaInfo(ctx context.Context) ([]ColumnInfo, error) {
	start := time.Now()
	columns, err := g.schemaInfo(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.ObserveGatewayOperation("schema_info", outcome, time.Since(start))
	return columns, err
}

func (g *Gateway) schemaInfo(ctx context.Context) ([]ColumnInfo, error) {
	conn, err := g.checkout(ctx)
	if err != nil {
		return nil, err
	}
	defer g.checkin(conn)

	rows, err := conn.QueryContext(ctx, schemaInfoQuery, g.schema)
	if err != nil {
		return nil, fmt.Errorf("query schema info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]ColumnInfo, 0)
	for rows.Next() {
		var column ColumnInfo
		if err := rows.Scan(
			&column.TableSchema,
			&column.TableName,
			&column.ColumnName,
			&column.DataType,
			&column.IsNullable,
			&column.ConstraintType,
			&column.ConstraintName,
			&column.ReferencedTable,
			&column.ReferencedColumn,
		); err != nil {
			return nil, fmt.Errorf("scan schema info: %w", err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema info: %w", err)
	}
	return columns, nil
}
