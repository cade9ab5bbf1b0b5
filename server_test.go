package yamlbase

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/yamlbase/yamlbase/internal/testutil"
)

const testSchema = `
database:
  name: widgets
tables:
  items:
    columns:
      id: INTEGER PRIMARY KEY
      name: TEXT
    data:
      - id: 1
        name: sprocket
      - id: 2
        name: gadget
`

func writeSchema(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestRunServesPostgres exercises the full Config -> New -> Run path
// (SPEC_FULL.md §6) end to end against a real lib/pq connection, picking
// an ephemeral port the way internal/protocol's own tests do.
func TestRunServesPostgres(t *testing.T) {
	path := writeSchema(t, testSchema)

	ln := testutil.Listen(t)
	_, port, err := splitHostPort(ln.Addr().String())
	require.NoError(t, err)
	ln.Close()

	cfg := Config{
		File:        path,
		Port:        port,
		BindAddress: "127.0.0.1",
		Protocol:    "postgres",
		Username:    "yamlbase",
		Password:    "secret",
	}

	srv, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx)

	dsn := fmt.Sprintf("host=127.0.0.1 port=%d user=yamlbase password=secret dbname=widgets sslmode=disable", cfg.Port)

	var db *sql.DB
	require.Eventually(t, func() bool {
		var derr error
		db, derr = sql.Open("postgres", dsn)
		if derr != nil {
			return false
		}
		return db.Ping() == nil
	}, 2*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { db.Close() })

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM items WHERE id = 2").Scan(&name))
	require.Equal(t, "gadget", name)
}

// TestHotReloadPicksUpSchemaChanges exercises internal/server.WatchAndReload
// wired through Server.Run (SPEC_FULL.md §6).
func TestHotReloadPicksUpSchemaChanges(t *testing.T) {
	path := writeSchema(t, testSchema)

	ln := testutil.Listen(t)
	_, port, err := splitHostPort(ln.Addr().String())
	require.NoError(t, err)
	ln.Close()

	cfg := Config{
		File:        path,
		Port:        port,
		BindAddress: "127.0.0.1",
		Protocol:    "postgres",
		Username:    "yamlbase",
		Password:    "secret",
		HotReload:   true,
	}

	srv, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx)

	dsn := fmt.Sprintf("host=127.0.0.1 port=%d user=yamlbase password=secret dbname=widgets sslmode=disable", cfg.Port)
	var db *sql.DB
	require.Eventually(t, func() bool {
		var derr error
		db, derr = sql.Open("postgres", dsn)
		if derr != nil {
			return false
		}
		return db.Ping() == nil
	}, 2*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { db.Close() })

	updated := testSchema + `      - id: 3
        name: widget
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		var name string
		if err := db.QueryRow("SELECT name FROM items WHERE id = 3").Scan(&name); err != nil {
			return false
		}
		return name == "widget"
	}, 3*time.Second, 50*time.Millisecond)
}

func splitHostPort(addr string) (host string, port uint16, err error) {
	var p int
	_, err = fmt.Sscanf(addr, "127.0.0.1:%d", &p)
	if err != nil {
		return "", 0, err
	}
	return "127.0.0.1", uint16(p), nil
}
