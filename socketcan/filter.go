// File: socketcan/filter.go
// License: Apache-2.0
package socketcan

// Filter is a platform-independent CAN acceptance filter (id/mask pair,
// per SocketCAN's struct can_filter) so callers don't need to import
// golang.org/x/sys/unix directly just to configure filtering.
type Filter struct {
	ID   uint32
	Mask uint32
}
