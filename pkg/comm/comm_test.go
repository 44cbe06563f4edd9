package comm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Run fn on every rank of a local group and fail the test if the group does
// not finish in time.
func runLocalTest(t *testing.T, size int, fn func(ctx context.Context, c *Comm) error) error {
	errc := make(chan error, 1)
	go func() {
		errc <- RunLocal(context.Background(), size, fn)
	}()

	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout")
		return nil
	}
}

// Shared collective checks, run against every transport
func testCollectives(t *testing.T, c *Comm) {
	ctx := context.Background()
	rank := c.Rank()
	size := c.Size()

	// Bcast
	var buf []int64
	if rank == 1%size {
		buf = []int64{7, 8, 9}
	}
	got, err := c.Bcast(ctx, buf, 1%size)
	require.Nil(t, err, "Bcast failed")
	require.Equal(t, []int64{7, 8, 9}, got, "Bcast delivered the wrong values")

	// Scatterv with a zero-length slice for the last rank
	counts := make([]int, size)
	offsets := make([]int, size)
	var send []int64
	pos := 0
	for i := 0; i < size-1; i++ {
		counts[i] = i + 1
		offsets[i] = pos
		pos += i + 1
	}
	offsets[size-1] = pos
	for i := 0; i < pos; i++ {
		send = append(send, (int64)(i))
	}
	part, err := c.Scatterv(ctx, send, counts, offsets, 0)
	require.Nil(t, err, "Scatterv failed")
	require.Equal(t, counts[rank], len(part), "Scatterv returned the wrong amount of data")
	for i, v := range part {
		require.Equal(t, (int64)(offsets[rank]+i), v, "Scatterv returned the wrong data")
	}

	// Gather
	all, err := c.Gather(ctx, []int64{(int64)(rank), (int64)(rank * 10)}, 0)
	require.Nil(t, err, "Gather failed")
	if rank == 0 {
		require.Equal(t, 2*size, len(all))
		for i := 0; i < size; i++ {
			require.Equal(t, []int64{(int64)(i), (int64)(i * 10)}, all[2*i:2*i+2], "Gather out of rank order")
		}
	} else {
		require.Nil(t, all, "Non-root received gather output")
	}

	// Gatherv back to the last rank, reversing the scatter
	root := size - 1
	var gcounts, goffsets []int
	if rank == root {
		gcounts, goffsets = counts, offsets
	}
	back, err := c.Gatherv(ctx, part, gcounts, goffsets, root)
	require.Nil(t, err, "Gatherv failed")
	if rank == root {
		require.Equal(t, len(send), len(back))
		for i, v := range back {
			require.Equal(t, (int64)(i), v, "Gatherv placed data at the wrong offset")
		}
	}

	require.Nil(t, c.Barrier(ctx), "Barrier failed")
}

func TestLocalCollectives(t *testing.T) {
	for _, size := range []int{1, 2, 3, 8} {
		err := runLocalTest(t, size, func(ctx context.Context, c *Comm) error {
			testCollectives(t, c)
			return nil
		})
		require.Nilf(t, err, "Group of %v failed", size)
	}
}

// Data handed to Send must not be visible to (or changeable by) the receiver
func TestLocalFullCopy(t *testing.T) {
	src := []int64{1, 2, 3}
	err := runLocalTest(t, 2, func(ctx context.Context, c *Comm) error {
		if c.Rank() == 0 {
			_, err := c.Bcast(ctx, src, 0)
			return err
		}
		got, err := c.Bcast(ctx, nil, 0)
		if err != nil {
			return err
		}
		got[0] = 100
		return nil
	})
	require.Nil(t, err)
	require.Equal(t, []int64{1, 2, 3}, src, "Receiver aliased the sender's buffer")
}

// A failing rank must unblock every rank waiting on it
func TestLocalAbort(t *testing.T) {
	boom := errors.New("boom")
	err := runLocalTest(t, 4, func(ctx context.Context, c *Comm) error {
		if c.Rank() == 2 {
			return boom
		}
		_, err := c.Gather(ctx, []int64{1}, 0)
		if err != nil {
			return err
		}
		_, err = c.Bcast(ctx, nil, 0)
		return err
	})
	require.NotNil(t, err, "Abort was not reported")
	require.True(t, errors.Is(err, boom), "Wrong error reported: %v", err)
}

func TestOutOfStep(t *testing.T) {
	comms, err := NewLocal(2)
	require.Nil(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Rank 1 runs a gather where rank 0 expects a broadcast
		comms[1].Gather(ctx, []int64{1}, 0)
	}()

	_, err = comms[0].Bcast(ctx, []int64{5}, 0)
	require.Nil(t, err, "Sending side of the broadcast failed")

	// Rank 0's next receive from rank 1 is the gather, tagged as message 1
	_, err = comms[0].Gatherv(ctx, nil, []int{0, 1}, []int{0, 0}, 0)
	require.NotNil(t, err, "Mismatched collectives were not detected")

	var cerr *Error
	require.True(t, errors.As(err, &cerr), "Expected a comm.Error, got %T", err)
	require.Equal(t, 1, cerr.Peer)
	wg.Wait()
}

func TestBadLayout(t *testing.T) {
	comms, err := NewLocal(1)
	require.Nil(t, err)

	_, err = comms[0].Scatterv(context.Background(), []int64{1, 2}, []int{3}, []int{0}, 0)
	require.NotNil(t, err, "Out of bounds scatter was accepted")

	_, err = comms[0].Bcast(context.Background(), nil, 1)
	require.NotNil(t, err, "Out of range root was accepted")
}

func TestCodec(t *testing.T) {
	msg := Message{Tag: 42<<8 | opGatherv, Data: []int64{-1, 0, 1, -9223372036854775808, 9223372036854775807}}

	out, err := decodeMessage(encodeMessage(msg))
	require.Nil(t, err, "Failed to decode frame")
	require.Equal(t, msg, out, "Message changed through the codec")

	empty, err := decodeMessage(encodeMessage(Message{Tag: 1}))
	require.Nil(t, err)
	require.Zero(t, len(empty.Data))

	_, err = decodeMessage([]byte{1, 2, 3})
	require.NotNil(t, err, "Short frame accepted")

	frame := encodeMessage(msg)
	_, err = decodeMessage(frame[:len(frame)-3])
	require.NotNil(t, err, "Truncated frame accepted")
}
