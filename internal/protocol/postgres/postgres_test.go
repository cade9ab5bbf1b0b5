package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/storage"
	"github.com/yamlbase/yamlbase/internal/testutil"
	"github.com/yamlbase/yamlbase/internal/value"
)

func testDatabase() *catalog.Database {
	db := catalog.NewDatabase("yamlbase_test")
	employees := catalog.NewTable("employees", []catalog.Column{
		{Name: "id", Type: value.SqlType{Name: value.TypeInteger}, PrimaryKey: true},
		{Name: "name", Type: value.SqlType{Name: value.TypeText}},
	})
	employees.AppendRow([]value.Value{value.Integer(1), value.Text("Ada")})
	employees.AppendRow([]value.Value{value.Integer(2), value.Text("Grace")})
	if err := db.AddTable(employees); err != nil {
		panic(err)
	}
	return db
}

func startServer(t *testing.T) (host, port string) {
	t.Helper()
	ln := testutil.Listen(t)
	s := storage.New(testDatabase())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ListenAndServe(ctx, ln, s, Auth{Username: "yamlbase", Password: "secret"}, 5*time.Second, nil)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	host, port := startServer(t)
	dsn := fmt.Sprintf("host=%s port=%s user=yamlbase password=secret dbname=yamlbase_test sslmode=disable", host, port)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSimpleQuery exercises the 'Q' simple-query cycle (spec §4.6).
func TestSimpleQuery(t *testing.T) {
	db := openTestDB(t)
	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM employees WHERE id = 1").Scan(&name))
	require.Equal(t, "Ada", name)
}

// TestExtendedQueryWithParameter exercises Parse/Bind/Describe/Execute/
// Sync with a bound positional parameter, which database/sql+lib/pq uses
// automatically for any Query/QueryRow call that passes arguments
// (SPEC_FULL.md §8 scenario 6; lib/pq sends the parameter in text format).
func TestExtendedQueryWithParameter(t *testing.T) {
	db := openTestDB(t)
	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM employees WHERE id = $1", 2).Scan(&name))
	require.Equal(t, "Grace", name)
}

// TestAuthenticationFailure checks that a wrong password is rejected
// during startup rather than silently accepted (spec §4.6).
func TestAuthenticationFailure(t *testing.T) {
	host, port := startServer(t)
	dsn := fmt.Sprintf("host=%s port=%s user=yamlbase password=wrong dbname=yamlbase_test sslmode=disable", host, port)
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.Error(t, db.Ping())
}
