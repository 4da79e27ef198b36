//go:build windows

package main

import "io"

// registerQuitHandler is a no-op: there is no SIGQUIT on Windows.
func registerQuitHandler(io.Writer, func()) func() {
	return func() {}
}
