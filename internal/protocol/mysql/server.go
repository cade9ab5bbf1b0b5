package mysql

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yamlbase/yamlbase/internal/logging"
	"github.com/yamlbase/yamlbase/internal/storage"
)

// ListenAndServe accepts connections on ln until ctx is canceled, serving
// each on its own goroutine under an errgroup tied to the listener's
// lifetime (spec §5), mirroring internal/protocol/postgres.ListenAndServe.
func ListenAndServe(ctx context.Context, ln net.Listener, s *storage.Storage, auth Auth, timeout time.Duration, log logging.QueryLogger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return g.Wait()
			default:
				return err
			}
		}
		g.Go(func() error {
			if err := Serve(nc, s, auth, timeout, log); err != nil && log != nil {
				log.Printf("mysql connection ended: %v", err)
			}
			return nil
		})
	}
}
