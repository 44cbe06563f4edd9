package comm

import (
	"context"
	"fmt"
)

// One point-to-point message. Tag identifies the collective the message
// belongs to so that a rank which fell out of step is detected instead of
// silently consuming another phase's data.
type Message struct {
	Tag  uint64
	Data []int64
}

// Ordered, reliable point-to-point links between every pair of ranks.
// Messages between a given pair arrive in the order they were sent. A
// transport never delivers a message to its own rank.
type Transport interface {
	Rank() int
	Size() int

	// Send hands msg to dst. The transport must not retain msg.Data after
	// Send returns.
	Send(ctx context.Context, dst int, msg Message) error

	// Recv returns the next message from src. The caller owns the returned
	// data.
	Recv(ctx context.Context, src int) (Message, error)

	Close() error
}

// Returned for any failed communication. Peer is -1 when the failure is not
// tied to a single rank.
type Error struct {
	Op   string
	Peer int
	Err  error
}

func (self *Error) Error() string {
	if self.Peer < 0 {
		return fmt.Sprintf("%v failed: %v", self.Op, self.Err)
	}
	return fmt.Sprintf("%v with rank %v failed: %v", self.Op, self.Peer, self.Err)
}

func (self *Error) Unwrap() error {
	return self.Err
}

func (self *Error) Cause() error {
	return self.Err
}
