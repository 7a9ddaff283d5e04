//go:build linux

package midisampler

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// EnableRealtime prepares the calling goroutine to drive Process: it is wired
// to its OS thread and all current and future pages of the process are locked
// in memory. A failed mlockall is logged and ignored; the sampler still runs,
// only with page faults possible in the render path.
func EnableRealtime() {
	runtime.LockOSThread()

	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		engineDebug("Warning: could not lock memory: %v", err)
		return
	}
	engineDebug("Realtime mode: thread locked, memory locked")
}

// DisableRealtime undoes EnableRealtime for the calling goroutine.
func DisableRealtime() {
	if err := unix.Munlockall(); err != nil {
		engineDebug("Warning: could not unlock memory: %v", err)
	}
	runtime.UnlockOSThread()
}
