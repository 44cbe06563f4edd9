// Package comm provides MPI-style collective operations (broadcast, variable
// scatter, fixed and variable gather, barrier) for a fixed group of ranks.
//
// Collectives are built on a Transport of ordered point-to-point links. Two
// transports are provided: an in-process one where every rank is a goroutine
// (NewLocal, RunLocal) and a network one where every rank is a process and
// ranks are connected by a full mesh of websocket connections (NewNetwork).
//
// All calls block until this rank's part of the collective is complete. Every
// rank must issue the same sequence of collectives; there are no timeouts
// beyond the context passed in.
package comm

import (
	"context"
	"fmt"
)

// Collective kinds, encoded in the low byte of every message tag
const (
	opBcast uint64 = iota + 1
	opScatterv
	opGather
	opGatherv
)

var opNames = map[uint64]string{
	opBcast:    "bcast",
	opScatterv: "scatterv",
	opGather:   "gather",
	opGatherv:  "gatherv",
}

// Comm runs collectives for one rank. It is not safe for concurrent use: a
// rank issues one collective at a time.
type Comm struct {
	t   Transport
	seq uint64 // number of collectives issued so far
}

func New(t Transport) *Comm {
	return &Comm{t: t}
}

func (self *Comm) Rank() int {
	return self.t.Rank()
}

func (self *Comm) Size() int {
	return self.t.Size()
}

func (self *Comm) Close() error {
	return self.t.Close()
}

func (self *Comm) nextTag(op uint64) uint64 {
	self.seq++
	return self.seq<<8 | op
}

func (self *Comm) checkRoot(op uint64, root int) error {
	if root < 0 || root >= self.Size() {
		return &Error{Op: opNames[op], Peer: -1, Err: fmt.Errorf("root %v out of range for %v ranks", root, self.Size())}
	}
	return nil
}

func (self *Comm) send(ctx context.Context, op uint64, dst int, tag uint64, data []int64) error {
	if err := self.t.Send(ctx, dst, Message{Tag: tag, Data: data}); err != nil {
		return &Error{Op: opNames[op], Peer: dst, Err: err}
	}
	return nil
}

func (self *Comm) recv(ctx context.Context, op uint64, src int, tag uint64) ([]int64, error) {
	msg, err := self.t.Recv(ctx, src)
	if err != nil {
		return nil, &Error{Op: opNames[op], Peer: src, Err: err}
	}
	if msg.Tag != tag {
		return nil, &Error{Op: opNames[op], Peer: src,
			Err: fmt.Errorf("out of step: expected message %v (%v), got %v (%v)",
				tag>>8, opNames[tag&0xff], msg.Tag>>8, opNames[msg.Tag&0xff])}
	}
	return msg.Data, nil
}

// Bcast replicates root's buf on every rank. Every rank gets its own copy.
func (self *Comm) Bcast(ctx context.Context, buf []int64, root int) ([]int64, error) {
	if err := self.checkRoot(opBcast, root); err != nil {
		return nil, err
	}
	tag := self.nextTag(opBcast)

	if self.Rank() != root {
		return self.recv(ctx, opBcast, root, tag)
	}

	for i := 0; i < self.Size(); i++ {
		if i == root {
			continue
		}
		if err := self.send(ctx, opBcast, i, tag, buf); err != nil {
			return nil, err
		}
	}
	return append([]int64{}, buf...), nil
}

// Scatterv sends send[offsets[i]:offsets[i]+counts[i]] from root to rank i,
// including zero-length slices. send, counts and offsets are only read at
// the root. The root receives a copy of its own slice.
func (self *Comm) Scatterv(ctx context.Context, send []int64, counts, offsets []int, root int) ([]int64, error) {
	if err := self.checkRoot(opScatterv, root); err != nil {
		return nil, err
	}
	tag := self.nextTag(opScatterv)

	if self.Rank() != root {
		return self.recv(ctx, opScatterv, root, tag)
	}

	if err := self.checkLayout(opScatterv, counts, offsets, len(send)); err != nil {
		return nil, err
	}

	var own []int64
	for i := 0; i < self.Size(); i++ {
		part := send[offsets[i] : offsets[i]+counts[i]]
		if i == root {
			own = append([]int64{}, part...)
			continue
		}
		if err := self.send(ctx, opScatterv, i, tag, part); err != nil {
			return nil, err
		}
	}
	return own, nil
}

// Gather concatenates every rank's send at root, in rank order. All ranks must
// contribute the same number of values. Non-root ranks get nil.
func (self *Comm) Gather(ctx context.Context, send []int64, root int) ([]int64, error) {
	if err := self.checkRoot(opGather, root); err != nil {
		return nil, err
	}
	tag := self.nextTag(opGather)

	if self.Rank() != root {
		return nil, self.send(ctx, opGather, root, tag, send)
	}

	out := make([]int64, 0, len(send)*self.Size())
	for i := 0; i < self.Size(); i++ {
		if i == root {
			out = append(out, send...)
			continue
		}
		data, err := self.recv(ctx, opGather, i, tag)
		if err != nil {
			return nil, err
		}
		if len(data) != len(send) {
			return nil, &Error{Op: "gather", Peer: i,
				Err: fmt.Errorf("expected %v values, got %v", len(send), len(data))}
		}
		out = append(out, data...)
	}
	return out, nil
}

// Gatherv places rank i's send at offsets[i] of root's result, which is
// sum(counts) long. counts and offsets are only read at the root, where
// rank i must contribute exactly counts[i] values. Non-root ranks get nil.
func (self *Comm) Gatherv(ctx context.Context, send []int64, counts, offsets []int, root int) ([]int64, error) {
	if err := self.checkRoot(opGatherv, root); err != nil {
		return nil, err
	}
	tag := self.nextTag(opGatherv)

	if self.Rank() != root {
		return nil, self.send(ctx, opGatherv, root, tag, send)
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if err := self.checkLayout(opGatherv, counts, offsets, total); err != nil {
		return nil, err
	}

	out := make([]int64, total)
	for i := 0; i < self.Size(); i++ {
		data := send
		if i != root {
			var err error
			data, err = self.recv(ctx, opGatherv, i, tag)
			if err != nil {
				return nil, err
			}
		}
		if len(data) != counts[i] {
			return nil, &Error{Op: "gatherv", Peer: i,
				Err: fmt.Errorf("expected %v values, got %v", counts[i], len(data))}
		}
		copy(out[offsets[i]:], data)
	}
	return out, nil
}

// Barrier returns once every rank has entered it.
func (self *Comm) Barrier(ctx context.Context) error {
	if _, err := self.Gather(ctx, nil, 0); err != nil {
		return err
	}
	_, err := self.Bcast(ctx, nil, 0)
	return err
}

// Counts and offsets must describe one in-bounds range per rank
func (self *Comm) checkLayout(op uint64, counts, offsets []int, bufLen int) error {
	if len(counts) != self.Size() || len(offsets) != self.Size() {
		return &Error{Op: opNames[op], Peer: -1,
			Err: fmt.Errorf("need %v counts and offsets, got %v and %v", self.Size(), len(counts), len(offsets))}
	}
	for i := range counts {
		if counts[i] < 0 || offsets[i] < 0 || offsets[i]+counts[i] > bufLen {
			return &Error{Op: opNames[op], Peer: -1,
				Err: fmt.Errorf("range [%v, %v) of rank %v out of bounds for %v values",
					offsets[i], offsets[i]+counts[i], i, bufLen)}
		}
	}
	return nil
}
