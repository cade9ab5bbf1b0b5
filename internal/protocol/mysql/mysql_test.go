package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
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

func startServer(t *testing.T) string {
	t.Helper()
	ln := testutil.Listen(t)
	s := storage.New(testDatabase())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ListenAndServe(ctx, ln, s, Auth{Username: "yamlbase", Password: "secret"}, 5*time.Second, nil)
	return ln.Addr().String()
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	addr := startServer(t)
	dsn := fmt.Sprintf("yamlbase:secret@tcp(%s)/yamlbase_test", addr)
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestComQuery exercises the caching_sha2_password fast-auth path and the
// COM_QUERY text result-set protocol (spec §4.7, SPEC_FULL.md §8
// scenario 4).
func TestComQuery(t *testing.T) {
	db := openTestDB(t)
	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM employees WHERE id = 1").Scan(&name))
	require.Equal(t, "Ada", name)
}

// TestAuthenticationFailure checks that a wrong password is rejected
// during the handshake.
func TestAuthenticationFailure(t *testing.T) {
	addr := startServer(t)
	dsn := fmt.Sprintf("yamlbase:wrong@tcp(%s)/yamlbase_test", addr)
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.Error(t, db.Ping())
}

func TestMultipleQueriesOnOneConnection(t *testing.T) {
	db := openTestDB(t)
	var first, second string
	require.NoError(t, db.QueryRow("SELECT name FROM employees WHERE id = 1").Scan(&first))
	require.NoError(t, db.QueryRow("SELECT name FROM employees WHERE id = 2").Scan(&second))
	require.Equal(t, "Ada", first)
	require.Equal(t, "Grace", second)
}
