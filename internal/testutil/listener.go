// Package testutil provides small helpers shared by the wire-protocol
// integration tests, grounded in the teacher's own cmd/testutils
// pattern of standing up a disposable server per test.
package testutil

import (
	"net"
	"testing"
)

// Listen opens a TCP listener on an OS-assigned loopback port, closing it
// automatically at test cleanup.
func Listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}
