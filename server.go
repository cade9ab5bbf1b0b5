package yamlbase

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/logging"
	"github.com/yamlbase/yamlbase/internal/protocol/mysql"
	"github.com/yamlbase/yamlbase/internal/protocol/postgres"
	"github.com/yamlbase/yamlbase/internal/server"
	"github.com/yamlbase/yamlbase/internal/storage"
	"github.com/yamlbase/yamlbase/internal/yamlschema"
)

// defaultQueryTimeout bounds a single query's execution (spec §5); there is
// no CLI flag for it since spec.md §6 does not name one.
const defaultQueryTimeout = 30 * time.Second

// Server owns the loaded Storage and listens for one wire protocol's
// connections until its Run context is canceled, mirroring
// original_source's yamlbase::Server.
type Server struct {
	cfg     Config
	storage *storage.Storage
	log     *slog.Logger
}

// New loads cfg.File into a Storage and prepares a Server, but does not
// bind a listener yet; that happens in Run. Mirrors
// original_source's main.rs: Config::parse() -> config.init_logging() ->
// Server::new(config).
func New(cfg Config) (*Server, error) {
	logger := logging.Init(cfg.LogLevel, cfg.Verbose)

	if cfg.File == "" {
		return nil, dberrors.New(dberrors.KindIO, "no schema file given (-f/--file)")
	}

	db, declaredAuth, err := yamlschema.Load(cfg.File)
	if err != nil {
		return nil, err
	}
	if cfg.Database != "" && db.Name != cfg.Database {
		return nil, dberrors.New(dberrors.KindIO, "schema declares database %q, not requested %q", db.Name, cfg.Database)
	}

	username, password := cfg.Username, cfg.Password
	if declaredAuth != nil {
		if declaredAuth.Username != "" {
			username = declaredAuth.Username
		}
		if declaredAuth.Password != "" {
			password = declaredAuth.Password
		}
	}
	cfg.Username, cfg.Password = username, password

	return &Server{
		cfg:     cfg,
		storage: storage.New(db),
		log:     logger,
	}, nil
}

// Run binds the configured protocol's listener, optionally starts the
// hot-reload watcher, and serves connections until ctx is canceled.
// Mirrors original_source's server.run().
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.BindAddress, strconv.Itoa(int(s.cfg.defaultPort())))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return dberrors.Wrap(dberrors.KindIO, err, "binding %s", addr)
	}

	s.log.Info("yamlbase listening", "protocol", s.cfg.Protocol, "addr", addr, "file", s.cfg.File)

	if s.cfg.HotReload {
		go func() {
			if err := server.WatchAndReload(ctx, s.cfg.File, s.storage, s.log); err != nil {
				s.log.Error("hot-reload watcher stopped", "error", err)
			}
		}()
	}

	ql := logging.SlogQueryLogger{Logger: s.log}

	switch s.cfg.Protocol {
	case "mysql":
		auth := mysql.Auth{Username: s.cfg.Username, Password: s.cfg.Password}
		return mysql.ListenAndServe(ctx, ln, s.storage, auth, defaultQueryTimeout, ql)
	case "postgres", "":
		auth := postgres.Auth{Username: s.cfg.Username, Password: s.cfg.Password}
		return postgres.ListenAndServe(ctx, ln, s.storage, auth, defaultQueryTimeout, ql)
	default:
		return dberrors.New(dberrors.KindUnsupported, "unsupported protocol %q", s.cfg.Protocol)
	}
}
