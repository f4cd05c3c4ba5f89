// ABOUTME: Entry point for the snipsync daemon and CLI
// ABOUTME: Builds the cobra command tree and runs it under a signal-aware context

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _                               
 ___ _ __ (_)_ __  ___ _   _ _ __   ___ 
/ __| '_ \| | '_ \/ __| | | | '_ \ / __|
\__ \ | | | | |_) \__ \ |_| | | | | (__ 
|___/_| |_|_| .__/|___/\__, |_| |_|\___|
            |_|        |___/            
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
