package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// interrupt cancels a context on the first SIGINT or SIGTERM. A second
// signal exits the process at once.
type interrupt struct {
	ctx    context.Context
	cancel context.CancelFunc
	sigs   chan os.Signal
	done   chan struct{}
	got    atomic.Bool
}

func notifyInterrupt(parent context.Context, stderr io.Writer) *interrupt {
	ctx, cancel := context.WithCancel(parent)
	i := &interrupt{
		ctx:    ctx,
		cancel: cancel,
		sigs:   make(chan os.Signal, 2),
		done:   make(chan struct{}),
	}
	signal.Notify(i.sigs, os.Interrupt, syscall.SIGTERM)
	go i.watch(stderr)
	return i
}

func (i *interrupt) watch(stderr io.Writer) {
	select {
	case sig := <-i.sigs:
		i.got.Store(true)
		fmt.Fprintf(stderr, "\nReceived %s, stopping the agent (press again to exit immediately)\n", sig)
		i.cancel()
	case <-i.done:
		return
	}
	select {
	case <-i.sigs:
		os.Exit(130)
	case <-i.done:
	}
}

// Context is cancelled by the first signal.
func (i *interrupt) Context() context.Context { return i.ctx }

// Interrupted reports whether a signal arrived.
func (i *interrupt) Interrupted() bool { return i.got.Load() }

// Stop releases the signal handler.
func (i *interrupt) Stop() {
	signal.Stop(i.sigs)
	close(i.done)
	i.cancel()
}
