package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/srg/voltlog/internal/groutine"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// withInterrupt returns a context cancelled on Ctrl+C or SIGTERM
func withInterrupt(parent context.Context, out io.Writer, what string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	groutine.Go(ctx, "signal-watcher", func(ctx context.Context) {
		select {
		case <-sigCh:
			fmt.Fprintf(out, "\nCtrl+C pressed, cancelling %s...\n", what)
			cancel()
		case <-ctx.Done():
		}
	})

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
