// Package main is the entry point for sgsync.
//
// sgsync keeps the ingress rules of AWS security groups and Hetzner Cloud
// firewalls in line with a published list of CIDRs. It runs one pass and
// exits, or repeats on an interval when REPEAT is set.
//
// For detailed usage information, run:
//
//	sgsync --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/sgsync/cmd/sgsync/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
