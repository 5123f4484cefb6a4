package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "worker":
		err = runWorker(args)
	case "replay":
		err = runReplay(args)
	case "admin":
		err = runAdmin(args)
	case "migrate":
		err = runMigrate(args)
	case "help", "--help", "-h":
		printHelp()
	default:
		printHelp()
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: vendora <command> [options]

Commands:
  serve     Run the API server and the projection worker (default)
  worker    Run only the projection worker
  replay    Rebuild read models from the event log
  admin     Tenant and API key administration
  migrate   Apply or roll back database migrations
  help      Show this help message
`)
}
