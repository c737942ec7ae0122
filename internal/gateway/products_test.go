package gateway

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/pgagents/pgagents/internal/testutil"
)

var productColumns = []string{"product_id", "name", "inventory", "price", "refurbished", "category"}

func TestProductInfoWithoutParametersIsAbsent(t *testing.T) {
	db, mock := newSQLMock(t)
	logger, logs := testutil.NewCapturingLogger()
	gw := New(db, WithLogger(logger))

	zero := int64(0)
	blank := "   "
	queries := []ProductQuery{
		{},
		{ID: &zero},
		{Name: &blank},
		{Name: &blank, ID: &zero},
	}
	for _, query := range queries {
		products, ok := gw.ProductInfo(context.Background(), query)
		if ok || products != nil {
			t.Fatalf("ProductInfo(%#v) = %#v, %v", query, products, ok)
		}
	}
	if !strings.Contains(logs.String(), "product name or product id") {
		t.Fatalf("logs = %q", logs.String())
	}
	assertSQLMock(t, mock)
}

func TestProductInfoMatchesNameCaseInsensitively(t *testing.T) {
	db, mock := newSQLMock(t)
	gw := New(db)

	for _, name := range []string{"Widget", "WIDGET"} {
		mock.ExpectQuery(regexp.QuoteMeta(productInfoQuery)).
			WithArgs(name, nil).
			WillReturnRows(sqlmock.NewRows(productColumns).
				AddRow(int64(7), "Widget", int64(12), 19.99, false, "tools"))
	}

	upper := "WIDGET"
	lower := "Widget"
	first, ok := gw.ProductInfo(context.Background(), ProductQuery{Name: &lower})
	if !ok {
		t.Fatal("ProductInfo(Widget) absent")
	}
	second, ok := gw.ProductInfo(context.Background(), ProductQuery{Name: &upper})
	if !ok {
		t.Fatal("ProductInfo(WIDGET) absent")
	}
	if len(first) != 1 || len(second) != 1 || *first[0].Category != *second[0].Category || first[0].ProductID != second[0].ProductID {
		t.Fatalf("results differ: %#v vs %#v", first, second)
	}
	if first[0].Price != 19.99 || first[0].Inventory != 12 || first[0].Refurbished {
		t.Fatalf("product = %#v", first[0])
	}
	if !strings.Contains(productInfoQuery, "LOWER(name) = LOWER($1)") {
		t.Fatal("product lookup must compare names case-insensitively")
	}
	assertSQLMock(t, mock)
}

func TestProductInfoIDTakesPrecedenceOverName(t *testing.T) {
	db, mock := newSQLMock(t)
	gw := New(db)

	mock.ExpectQuery(regexp.QuoteMeta(productInfoQuery)).
		WithArgs(nil, int64(7)).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow(int64(7), "Widget", int64(3), 5.5, true, nil))

	name := "Gadget"
	id := int64(7)
	products, ok := gw.ProductInfo(context.Background(), ProductQuery{Name: &name, ID: &id})
	if !ok || len(products) != 1 {
		t.Fatalf("ProductInfo() = %#v, %v", products, ok)
	}
	if products[0].ProductID != 7 || products[0].Category != nil || !products[0].Refurbished {
		t.Fatalf("product = %#v", products[0])
	}
	assertSQLMock(t, mock)
}

func TestProductInfoNoMatchIsEmptyNotAbsent(t *testing.T) {
	db, mock := newSQLMock(t)
	gw := New(db)

	mock.ExpectQuery(regexp.QuoteMeta(productInfoQuery)).
		WithArgs(nil, int64(404)).
		WillReturnRows(sqlmock.NewRows(productColumns))

	id := int64(404)
	products, ok := gw.ProductInfo(context.Background(), ProductQuery{ID: &id})
	if !ok || len(products) != 0 {
		t.Fatalf("ProductInfo() = %#v, %v", products, ok)
	}
	assertSQLMock(t, mock)
}

func TestProductInfoQueryFailureIsAbsent(t *testing.T) {
	db, mock := newSQLMock(t)
	logger, logs := testutil.NewCapturingLogger()
	gw := New(db, WithLogger(logger))

	mock.ExpectQuery(regexp.QuoteMeta(productInfoQuery)).
		WithArgs("Widget", nil).
		WillReturnError(errors.New(`relation "products" does not exist`))

	name := "Widget"
	products, ok := gw.ProductInfo(context.Background(), ProductQuery{Name: &name})
	if ok || products != nil {
		t.Fatalf("ProductInfo() = %#v, %v", products, ok)
	}
	if !strings.Contains(logs.String(), "product lookup failed") {
		t.Fatalf("logs = %q", logs.String())
	}
	assertSQLMock(t, mock)
}
