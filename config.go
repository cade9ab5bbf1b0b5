// Package yamlbase loads a YAML-declared schema into memory and serves it
// over the PostgreSQL or MySQL wire protocol, mirroring the public
// Config/Server shape of original_source's yamlbase::Config /
// yamlbase::Server: a thin cmd/yamlbase main parses flags into Config,
// then New(cfg).Run(ctx) does the work.
package yamlbase

// Config holds every CLI-configurable knob (spec.md §6), tagged for
// go-flags so cmd/yamlbase can parse directly into it.
type Config struct {
	File        string `short:"f" long:"file" description:"Read the YAML schema and data from this file" value-name:"path" required:"true"`
	Port        uint16 `short:"p" long:"port" description:"Port to listen on (default: 5432 for postgres, 3306 for mysql)" value-name:"port"`
	BindAddress string `long:"bind-address" description:"Address to bind the listener to" value-name:"addr" default:"127.0.0.1"`
	Protocol    string `long:"protocol" description:"Wire protocol to speak" choice:"postgres" choice:"mysql" default:"postgres"`
	Username    string `short:"u" long:"username" description:"Username required of connecting clients (default: no auth)" value-name:"name"`
	Password    string `long:"password" description:"Password required of connecting clients" value-name:"password"`
	Database    string `long:"database" description:"Restrict serving to a single database name" value-name:"name"`
	HotReload   bool   `long:"hot-reload" description:"Watch --file and reload the schema on change"`
	Verbose     bool   `short:"v" long:"verbose" description:"Force debug-level logging"`
	LogLevel    string `long:"log-level" description:"Logging level: debug, info, warn, error" value-name:"level" default:"info"`
}

// defaultPort returns the protocol's conventional port when Port is unset.
func (c Config) defaultPort() uint16 {
	if c.Port != 0 {
		return c.Port
	}
	if c.Protocol == "mysql" {
		return 3306
	}
	return 5432
}
