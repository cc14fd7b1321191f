// File: socketcan/filter_test.go
// License: Apache-2.0
package socketcan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterIsPlatformIndependentValue(t *testing.T) {
	f := Filter{ID: 0x100, Mask: 0x7FF}
	assert.EqualValues(t, 0x100, f.ID)
	assert.EqualValues(t, 0x7FF, f.Mask)
}
