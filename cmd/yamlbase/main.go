package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/yamlbase/yamlbase"
)

var version string

func parseConfig(args []string) yamlbase.Config {
	var cfg yamlbase.Config
	parser := flags.NewParser(&cfg, flags.None)
	parser.Usage = "[options]"

	if _, err := parser.ParseArgs(args); err != nil {
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}
	return cfg
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Println(version)
		return
	}

	cfg := parseConfig(os.Args[1:])

	srv, err := yamlbase.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
