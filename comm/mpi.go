//go:build mpi
// +build mpi

package comm

import (
	"encoding/binary"
	"math"

	mpi "github.com/sbromberger/gompi"
)

// MPIComm adapts a gompi communicator to the Comm interface. Build with
// -tags mpi and run under mpiexec. Call mpi.Start(true) before use and
// mpi.Stop after: the nonblocking requests complete on goroutines, which
// needs the threaded MPI mode.
type MPIComm struct {
	o      *mpi.Communicator
	tagSeq int
}

// NewMPIComm wraps the world communicator. gompi must already be started.
func NewMPIComm() *MPIComm {
	return &MPIComm{o: mpi.NewCommunicator(nil)}
}

func (c *MPIComm) Rank() int { return c.o.Rank() }
func (c *MPIComm) Size() int { return c.o.Size() }

func packFloat64s(vals []float64) (b []byte) {
	b = make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return
}

func unpackFloat64s(b []byte, out []float64) {
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
}

type mpiReq struct {
	done chan struct{}
}

func (r *mpiReq) Wait() { <-r.done }

func (c *MPIComm) Isend(dest, tag int, buf []float64) Request {
	b := packFloat64s(buf)
	req := &mpiReq{done: make(chan struct{})}
	go func() {
		c.o.SendBytes(b, dest, tag)
		close(req.done)
	}()
	return req
}

func (c *MPIComm) Irecv(source, tag int, buf []float64) Request {
	req := &mpiReq{done: make(chan struct{})}
	go func() {
		b, _ := c.o.MrecvBytes(source, tag)
		unpackFloat64s(b, buf)
		close(req.done)
	}()
	return req
}

func (c *MPIComm) SendInts(dest, tag int, vals []int) {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], uint64(v))
	}
	c.o.SendBytes(b, dest, tag)
}

func (c *MPIComm) RecvInts(source, tag int) (vals []int) {
	b, _ := c.o.MrecvBytes(source, tag)
	vals = make([]int, len(b)/8)
	for i := range vals {
		vals[i] = int(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return
}

func (c *MPIComm) AllreduceSum(local, global []float64) {
	c.o.AllreduceFloat64s(global, local, mpi.OpSum, 0)
}

// AllgatherInt gathers through a one-hot sum reduction; the values stay
// exact through float64 for any realistic vector size.
func (c *MPIComm) AllgatherInt(v int) (out []int) {
	var (
		np     = c.o.Size()
		local  = make([]float64, np)
		global = make([]float64, np)
	)
	local[c.o.Rank()] = float64(v)
	c.o.AllreduceFloat64s(global, local, mpi.OpSum, 0)
	out = make([]int, np)
	for i, f := range global {
		out[i] = int(f)
	}
	return
}

func (c *MPIComm) AlltoallInt(send []int) (out []int) {
	var (
		np     = c.o.Size()
		local  = make([]float64, np*np)
		global = make([]float64, np*np)
	)
	for j, v := range send {
		local[c.o.Rank()*np+j] = float64(v)
	}
	c.o.AllreduceFloat64s(global, local, mpi.OpSum, 0)
	out = make([]int, np)
	for i := 0; i < np; i++ {
		out[i] = int(global[i*np+c.o.Rank()])
	}
	return
}

// BcastInt64 sends the high and low 32-bit halves separately so every
// int64 survives the float64 reduction exactly.
func (c *MPIComm) BcastInt64(v int64, root int) int64 {
	var (
		local  = make([]float64, 2)
		global = make([]float64, 2)
	)
	if c.o.Rank() == root {
		local[0] = float64(v >> 32)
		local[1] = float64(uint32(v))
	}
	c.o.AllreduceFloat64s(global, local, mpi.OpSum, 0)
	return int64(global[0])<<32 | int64(uint32(global[1]))
}

func (c *MPIComm) Barrier() { c.o.Barrier() }

func (c *MPIComm) NextTag() int {
	c.tagSeq++
	return 100 + c.tagSeq
}
