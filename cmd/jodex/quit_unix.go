//go:build !windows

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// registerQuitHandler makes SIGQUIT request a stop after the current
// iteration. The returned func unregisters the handler.
func registerQuitHandler(stderr io.Writer, requestStop func()) func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, syscall.SIGQUIT)
	go func() {
		select {
		case <-sigs:
			fmt.Fprintln(stderr, "\nSIGQUIT: stopping after the current iteration")
			requestStop()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
