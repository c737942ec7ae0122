package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pgagents/pgagents/internal/observability"
)

// ProductQuery selects products by id or by case-insensitive name. A zero id
// and a blank name both count as not given.
type ProductQuery struct {
	Name *string
	ID   *int64
}

type Product struct {
	ProductID   int64   `json:"product_id"`
	Name        string  `json:"name"`
	Inventory   int64   `json:"inventory"`
	Price       float64 `json:"price"`
	Refurbished bool    `json:"refurbished"`
	Category    *string `json:"category"`
}

const productInfoQuery = `SELECT product_id, name, inventory, price, refurbished, category
FROM products
WHERE (LOWER(name) = LOWER($1) AND $1 IS NOT NULL)
   OR (product_id = $2 AND $2 IS NOT NULL)`

// ProductInfo looks products up by id, or by name when no id is given. The
// second return is false when the lookup could not be made or failed; the
// reason is logged.
func (g *Gateway) ProductInfo(ctx context.Context, query ProductQuery) ([]Product, bool) {
	start := time.Now()
	products, ok := g.productInfo(ctx, query)
	outcome := "ok"
	if !ok {
		outcome = "absent"
	}
	observability.ObserveGatewayOperation("product_info", outcome, time.Since(start))
	return products, ok
}

func (g *Gateway) productInfo(ctx context.Context, query ProductQuery) ([]Product, bool) {
	var name, id any
	switch {
	case query.ID != nil && *query.ID != 0:
		id = *query.ID
	case query.Name != nil && strings.TrimSpace(*query.Name) != "":
		name = *query.Name
	default:
		g.logger.WarnContext(ctx, "product lookup needs a product name or product id")
		return nil, false
	}

	conn, err := g.checkout(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "product lookup failed", slog.Any("error", err))
		return nil, false
	}
	defer g.checkin(conn)

	rows, err := conn.QueryContext(ctx, productInfoQuery, name, id)
	if err != nil {
		g.logger.ErrorContext(ctx, "product lookup failed", slog.Any("error", err))
		return nil, false
	}
	defer func() { _ = rows.Close() }()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Inventory, &p.Price, &p.Refurbished, &p.Category); err != nil {
			g.logger.ErrorContext(ctx, "scan product", slog.Any("error", err))
			return nil, false
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		g.logger.ErrorContext(ctx, "iterate products", slog.Any("error", err))
		return nil, false
	}
	return products, true
}
