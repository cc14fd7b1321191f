//go:build linux

// File: consumer/priority_linux.go
// Pins the calling OS thread to a fixed-priority real-time scheduling
// class (spec §4.E, POSIX priority ~70). golang.org/x/sys/unix has no
// wrapper for sched_setscheduler, so this issues the syscall directly,
// following the same raw-unix.Syscall pattern the retrieved
// v2broker-perf-optimizer uses for SYS_IOPRIO_SET.
// License: Apache-2.0
package consumer

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const schedFIFO = 1

type schedParam struct {
	priority int32
}

// PinRealtime locks the current goroutine to its OS thread and raises it
// to SCHED_FIFO at the given priority (1-99). Requires CAP_SYS_NICE;
// failure is returned, not fatal, so a non-privileged run degrades to
// normal scheduling instead of refusing to start (spec §4.E "best
// effort; absence of RT privileges must not prevent startup").
func PinRealtime(priority int) error {
	runtime.LockOSThread()
	sp := schedParam{priority: int32(priority)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(schedFIFO), uintptr(unsafe.Pointer(&sp)))
	if errno != 0 {
		return fmt.Errorf("consumer: sched_setscheduler: %w", errno)
	}
	return nil
}
