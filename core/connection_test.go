package core

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/canteen/core/http"
	"github.com/searchktools/canteen/core/poller"
)

func TestConnectionReadCycle(t *testing.T) {
	sock := newFakeConn(10, "GET / HTTP/1.1\r\n", "\r\n")
	c := newConnection(FirstClientToken, sock, nil, time.Now())
	scratch := make([]byte, 64)

	assert.Equal(t, StateAwaitingRead, c.State())
	assert.Equal(t, poller.Readable, c.Interest())

	req, err := c.OnReadable(scratch)
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, StateAwaitingRead, c.State())
	assert.Equal(t, 16, c.Buffered())

	req, err = c.OnReadable(scratch)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, StateDispatching, c.State())

	// Ignored outside AwaitingRead.
	req, err = c.OnReadable(scratch)
	assert.NoError(t, err)
	assert.Nil(t, req)
}

func TestConnectionReadErrors(t *testing.T) {
	sock := newFakeConn(10)
	sock.reads = []readStep{{err: syscall.ECONNRESET}}
	c := newConnection(FirstClientToken, sock, nil, time.Now())

	_, err := c.OnReadable(make([]byte, 64))
	var fault *ConnectionFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "read", fault.Op)
	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Equal(t, StateClosing, c.State())

	sock = newFakeConn(11, "BROKEN\r\n")
	c = newConnection(FirstClientToken, sock, nil, time.Now())
	_, err = c.OnReadable(make([]byte, 64))
	assert.ErrorIs(t, err, http.ErrMalformed)
	assert.False(t, errors.As(err, &fault))
	assert.Equal(t, StateDispatching, c.State())
}

func TestConnectionWriteBeforeRespondIsNoop(t *testing.T) {
	sock := newFakeConn(10)
	c := newConnection(FirstClientToken, sock, nil, time.Now())
	done, err := c.OnWritable()
	assert.NoError(t, err)
	assert.False(t, done)
	assert.Zero(t, sock.writes)
}

// Whatever the split of partial writes, the peer receives exactly the
// serialized response, and every write makes progress or would block.
func TestConnectionPartialWritesDeliverExactBytes(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for round := 0; round < 200; round++ {
		size := rng.IntN(20000)
		resp := http.Data(http.StatusOK, "application/octet-stream", bytes.Repeat([]byte{byte(round)}, size))
		want := resp.Bytes()

		sock := newFakeConn(10)
		for total := 0; total < len(want); {
			n := rng.IntN(len(want)-total) + 1
			if rng.IntN(4) == 0 {
				sock.limits = append(sock.limits, 0)
				continue
			}
			sock.limits = append(sock.limits, n)
			total += n
		}

		scripted := len(sock.limits)
		c := newConnection(FirstClientToken, sock, nil, time.Now())
		c.Respond(resp)
		require.Equal(t, len(want), c.Pending())

		attempts := 0
		for {
			done, err := c.OnWritable()
			require.NoError(t, err)
			attempts++
			if done {
				break
			}
			assert.Equal(t, StateAwaitingWrite, c.State())
			assert.Equal(t, poller.Writable, c.Interest())
			require.Less(t, attempts, scripted)
		}

		assert.Equal(t, want, sock.out.Bytes(), "round %d", round)
		assert.Equal(t, len(want), c.Written())
		assert.Equal(t, StateClosing, c.State())
		assert.Equal(t, scripted, attempts)
	}
}

func TestConnectionWriteFault(t *testing.T) {
	sock := newFakeConn(10)
	sock.writeErr = syscall.EPIPE
	c := newConnection(FirstClientToken, sock, nil, time.Now())
	c.Respond(http.Text(http.StatusOK, strings.Repeat("a", 10)))

	_, err := c.OnWritable()
	var fault *ConnectionFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "write", fault.Op)
	assert.Equal(t, FirstClientToken, fault.Token)
	assert.Contains(t, err.Error(), "connection 2: write:")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting-read", StateAwaitingRead.String())
	assert.Equal(t, "dispatching", StateDispatching.String())
	assert.Equal(t, "awaiting-write", StateAwaitingWrite.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "unknown", State(9).String())
}
