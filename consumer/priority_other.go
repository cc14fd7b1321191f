//go:build !linux

// File: consumer/priority_other.go
// License: Apache-2.0
package consumer

import (
	"fmt"
	"runtime"
)

// PinRealtime is unavailable outside Linux; degrades to normal
// scheduling (see priority_linux.go doc comment for the policy this
// mirrors).
func PinRealtime(priority int) error {
	return fmt.Errorf("consumer: realtime scheduling unsupported on %s", runtime.GOOS)
}
