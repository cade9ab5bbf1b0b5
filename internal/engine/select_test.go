package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/sqlfront"
	"github.com/yamlbase/yamlbase/internal/storage"
	"github.com/yamlbase/yamlbase/internal/value"
)

// run builds an Executor over a fresh Storage for db and executes one
// statement, mirroring the original_source *_test.rs harness shape
// (construct Database/Table by hand, insert rows, parse, execute, assert
// on the result) translated into the teacher's table-driven Go idiom.
func run(t *testing.T, db *catalog.Database, sql string) *QueryResult {
	t.Helper()
	s := storage.New(db)
	lease := s.Reader()
	defer lease.Release()

	stmt, err := sqlfront.Parse(sql)
	require.NoError(t, err)

	ex := New(s, lease.Database(), 0)
	result, err := ex.Execute(stmt)
	require.NoError(t, err)
	return result
}

func employeesDB(t *testing.T) *catalog.Database {
	t.Helper()
	db := catalog.NewDatabase("test_db")
	employees := catalog.NewTable("employees", []catalog.Column{
		{Name: "id", Type: value.SqlType{Name: value.TypeInteger}, PrimaryKey: true},
		{Name: "name", Type: value.SqlType{Name: value.TypeText}},
		{Name: "department", Type: value.SqlType{Name: value.TypeText}},
		{Name: "salary", Type: value.SqlType{Name: value.TypeInteger}},
	})
	rows := []struct {
		id         int64
		name, dept string
		salary     int64
	}{
		{1, "Alice", "Engineering", 90000},
		{2, "Bob", "Engineering", 85000},
		{3, "Charlie", "Sales", 75000},
		{4, "Diana", "Sales", 80000},
		{5, "Eve", "Engineering", 95000},
	}
	for _, r := range rows {
		employees.AppendRow([]value.Value{
			value.Integer(r.id), value.Text(r.name), value.Text(r.dept), value.Integer(r.salary),
		})
	}
	require.NoError(t, db.AddTable(employees))
	return db
}

// TestDistinctOnSingleColumn mirrors original_source's
// tests/distinct_on_test.rs "DISTINCT ON (department)" scenario: one row
// per department, the highest earner given the ORDER BY.
func TestDistinctOnSingleColumn(t *testing.T) {
	db := employeesDB(t)
	result := run(t, db, `
		SELECT DISTINCT ON (department) department, name, salary
		FROM employees
		ORDER BY department, salary DESC
	`)
	require.Len(t, result.Rows, 2)

	byDept := make(map[string][]value.Value, 2)
	for _, row := range result.Rows {
		byDept[row[0].Text] = row
	}
	require.Equal(t, "Eve", byDept["Engineering"][1].Text)
	require.Equal(t, int64(95000), byDept["Engineering"][2].Integer)
	require.Equal(t, "Diana", byDept["Sales"][1].Text)
	require.Equal(t, int64(80000), byDept["Sales"][2].Integer)
}

func ordersDB(t *testing.T) *catalog.Database {
	t.Helper()
	db := catalog.NewDatabase("test_db")
	orders := catalog.NewTable("orders", []catalog.Column{
		{Name: "order_id", Type: value.SqlType{Name: value.TypeInteger}, PrimaryKey: true},
		{Name: "customer_id", Type: value.SqlType{Name: value.TypeInteger}},
		{Name: "product", Type: value.SqlType{Name: value.TypeText}},
		{Name: "amount", Type: value.SqlType{Name: value.TypeDecimal, Precision: 10, Scale: 2}},
		{Name: "order_date", Type: value.SqlType{Name: value.TypeDate}},
	})
	rows := []struct {
		id, customer int64
		product      string
		amount       string
		date         time.Time
	}{
		{1, 101, "Widget", "19.99", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{2, 102, "Gadget", "49.50", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{3, 101, "Widget", "19.99", time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)},
		{4, 103, "Gadget", "49.50", time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)},
		{5, 101, "Widget", "19.99", time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC)},
	}
	for _, r := range rows {
		amt, err := decimal.NewFromString(r.amount)
		require.NoError(t, err)
		orders.AppendRow([]value.Value{
			value.Integer(r.id), value.Integer(r.customer), value.Text(r.product),
			value.Dec(amt), value.Date(r.date),
		})
	}
	require.NoError(t, db.AddTable(orders))
	return db
}

// TestGroupByWithCTEAndLimit mirrors original_source's
// tests/group_by_cte_test.rs "simple GROUP BY with CTE" scenario, plus a
// LIMIT clause on top to exercise CTE materialization feeding both GROUP
// BY and LIMIT (spec §4.4.2's CTE materialization-not-inlining design).
func TestGroupByWithCTEAndLimit(t *testing.T) {
	db := ordersDB(t)
	result := run(t, db, `
		WITH ProductSales AS (
			SELECT product, amount
			FROM orders
		)
		SELECT product, SUM(amount) AS total_sales
		FROM ProductSales
		GROUP BY product
		ORDER BY product
		LIMIT 1
	`)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "Gadget", result.Rows[0][0].Text)
	require.True(t, result.Rows[0][1].AsDecimal().Equal(decimal.RequireFromString("99.00")))
}

// TestCountAggregate mirrors the COUNT aggregate scenario from
// SPEC_FULL.md §8's scenario list: COUNT(*) over a grouped query.
func TestCountAggregate(t *testing.T) {
	db := employeesDB(t)
	result := run(t, db, `
		SELECT department, COUNT(*) AS headcount
		FROM employees
		GROUP BY department
		ORDER BY department
	`)
	require.Len(t, result.Rows, 2)
	require.Equal(t, "Engineering", result.Rows[0][0].Text)
	require.Equal(t, int64(3), result.Rows[0][1].Integer)
	require.Equal(t, "Sales", result.Rows[1][0].Text)
	require.Equal(t, int64(2), result.Rows[1][1].Integer)
}
