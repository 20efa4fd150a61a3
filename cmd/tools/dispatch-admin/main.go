// cmd/tools/dispatch-admin/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

type command struct {
	name        string
	description string
	run         func(ctx context.Context, args []string) error
}

var commands = []command{
	{"migrate", "apply database migrations", runMigrate},
	{"seed", "insert the demo categories, users and channels", runSeed},
	{"publish", "store a message and dispatch it", runPublish},
	{"logs", "list delivery logs", runLogs},
	{"registry", "validate or export the activity registry", runRegistry},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if name != "help" && name != "-h" && name != "--help" {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	}
	usage()
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: dispatch-admin <command> [options]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.description)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Run 'dispatch-admin <command> --help' for command options.")
}
