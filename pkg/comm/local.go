package comm

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Messages that may be in flight on one link before the sender blocks
const localLinkDepth = 4

// In-process "network": one buffered channel per ordered pair of ranks. Only
// threads in the same address space can share it.
type localWorld struct {
	size  int
	links [][]chan Message // links[src][dst]
}

type localTransport struct {
	world *localWorld
	rank  int
}

// NewLocal returns one Comm per rank of an in-process group of the given
// size. Each Comm must be driven by its own goroutine.
func NewLocal(size int) ([]*Comm, error) {
	if size < 1 {
		return nil, fmt.Errorf("Group size must be at least 1, got %v", size)
	}

	world := &localWorld{size: size, links: make([][]chan Message, size)}
	for src := 0; src < size; src++ {
		world.links[src] = make([]chan Message, size)
		for dst := 0; dst < size; dst++ {
			if src != dst {
				world.links[src][dst] = make(chan Message, localLinkDepth)
			}
		}
	}

	comms := make([]*Comm, size)
	for rank := 0; rank < size; rank++ {
		comms[rank] = New(&localTransport{world: world, rank: rank})
	}
	return comms, nil
}

// RunLocal runs fn once per rank, each in its own goroutine, over a fresh
// in-process group. The first rank to fail cancels the context seen by all
// the others, which unblocks any collective they are waiting in; that first
// error is returned.
func RunLocal(ctx context.Context, size int, fn func(ctx context.Context, c *Comm) error) error {
	comms, err := NewLocal(size)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range comms {
		g.Go(func() error {
			defer c.Close()
			if err := fn(gctx, c); err != nil {
				return errors.Wrapf(err, "Rank %v failed", c.Rank())
			}
			return nil
		})
	}
	return g.Wait()
}

func (self *localTransport) Rank() int {
	return self.rank
}

func (self *localTransport) Size() int {
	return self.world.size
}

func (self *localTransport) checkPeer(peer int) error {
	if peer < 0 || peer >= self.world.size || peer == self.rank {
		return fmt.Errorf("invalid peer %v for rank %v of %v", peer, self.rank, self.world.size)
	}
	return nil
}

// Send copies msg.Data so that the receiver owns what it gets
func (self *localTransport) Send(ctx context.Context, dst int, msg Message) error {
	if err := self.checkPeer(dst); err != nil {
		return err
	}

	msg.Data = append([]int64{}, msg.Data...)
	select {
	case self.world.links[self.rank][dst] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (self *localTransport) Recv(ctx context.Context, src int) (Message, error) {
	if err := self.checkPeer(src); err != nil {
		return Message{}, err
	}

	select {
	case msg := <-self.world.links[src][self.rank]:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Channels are left open: a peer may still be draining its inbound links.
func (self *localTransport) Close() error {
	return nil
}
