package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var syncCommand = &cli.Command{
	Name:   "sync",
	Usage:  "Pull the server's chat list into the local cache",
	Before: prepareApp,
	After:  teardownApp,
	Action: runSync,
}

func runSync(ctx *cli.Context) error {
	gw := getGateway(ctx)
	stats, err := gw.SyncChats(ctx.Context)
	if err != nil {
		// Partial progress is kept; the user retries manually.
		return fmt.Errorf("sync failed (%d imported, %d updated before the error): %w",
			stats.Imported, stats.Updated, err)
	}
	fmt.Printf("Synced: %d imported, %d updated, %d skipped, %d handles\n",
		stats.Imported, stats.Updated, stats.Skipped, stats.Handles)
	return nil
}
