// File: logqueue/anomaly_limiter_test.go
// License: Apache-2.0
package logqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnomalyLimiterCapsWithinWindow(t *testing.T) {
	l := NewAnomalyLimiter("test.anomaly", time.Minute, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "third occurrence within the window must be suppressed")
}
