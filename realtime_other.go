//go:build !linux

package midisampler

import "runtime"

// EnableRealtime wires the calling goroutine to its OS thread. Memory locking
// is only available on Linux.
func EnableRealtime() {
	runtime.LockOSThread()
	engineDebug("Realtime mode: thread locked, memory locking unsupported on %s", runtime.GOOS)
}

// DisableRealtime undoes EnableRealtime for the calling goroutine.
func DisableRealtime() {
	runtime.UnlockOSThread()
}
