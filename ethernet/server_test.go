// File: ethernet/server_test.go
// License: Apache-2.0
package ethernet

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/pool"
	"github.com/fleetedge/canbus-core/queue"
)

func TestServerAcceptsAndDecodesPCANStream(t *testing.T) {
	p := pool.NewPool(frame.EthernetBusBase, 8)
	q := queue.New(8)
	srv := NewServer(Config{
		Addr:    "127.0.0.1:0",
		Framing: FramingPCAN,
		Pools:   func(int) *pool.Pool { return p },
		Queue:   q,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	srv.cfg.Addr = addr

	stop := make(chan struct{})
	go srv.Run(stop)
	defer close(stop)

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	wire := pcanRecord(0x321, []byte{1, 2, 3}, 5)
	_, err = conn.Write(wire)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.Depth() == 1 }, time.Second, 10*time.Millisecond)
	h, ok := q.Dequeue()
	require.True(t, ok)
	f := p.Read(h)
	assert.EqualValues(t, 0x321, f.CanID)
}

func TestServerRefusesSecondConcurrentClient(t *testing.T) {
	p := pool.NewPool(frame.EthernetBusBase, 8)
	q := queue.New(8)
	srv := NewServer(Config{
		Framing: FramingPCAN,
		Pools:   func(int) *pool.Pool { return p },
		Queue:   q,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	srv.cfg.Addr = addr

	stop := make(chan struct{})
	go srv.Run(stop)
	defer close(stop)

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	first, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer first.Close()

	time.Sleep(50 * time.Millisecond) // let the server mark activeConns

	second, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer second.Close()

	buf := make([]byte, 1)
	second.SetReadDeadline(time.Now().Add(time.Second))
	_, err = second.Read(buf)
	assert.Error(t, err, "server must close the second connection immediately")
}
