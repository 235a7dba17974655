package bvec

import (
	"fmt"

	"github.com/SeiyonArulampalam/tacs/comm"
)

// Distributor owns the precomputed scatter plans between a VarMap and an
// external ghost IndexSet: for every peer, the owned node offsets to
// serialize (send plan) and the ghost array positions to deposit (receive
// plan). The plans are block-size independent; per-operation buffers live
// in a ScatterCtx so several vectors can share one distributor.
//
// Construction is collective over the map's communicator.
type Distributor struct {
	m   *VarMap
	ext *IndexSet

	// extPtr partitions the ascending ghost list by owning rank:
	// positions [extPtr[p], extPtr[p+1]) are owned by rank p.
	extPtr []int
	// sendIDs[p] holds the local node offsets rank p requested.
	sendIDs [][]int
}

// NewDistributor exchanges the ghost request lists and builds both plans.
// Every id in ext must be a real node owned by some other rank.
func NewDistributor(m *VarMap, ext *IndexSet) (d *Distributor) {
	var (
		c    = m.Comm()
		np   = c.Size()
		rank = c.Rank()
		ids  = ext.Ids()
	)
	d = &Distributor{
		m:       m,
		ext:     ext,
		extPtr:  make([]int, np+1),
		sendIDs: make([][]int, np),
	}

	// The ghost list is ascending and ownership ranges are contiguous, so
	// the ids group into runs per owner.
	ownerRange := m.OwnerRange()
	k := 0
	for p := 0; p < np; p++ {
		d.extPtr[p] = k
		for k < len(ids) && ids[k] < ownerRange[p+1] {
			if p == rank {
				panic(fmt.Sprintf("bvec: ghost id %d is locally owned", ids[k]))
			}
			k++
		}
	}
	d.extPtr[np] = k
	if k != len(ids) {
		panic(fmt.Sprintf("bvec: ghost id %d outside global range", ids[k]))
	}

	// Tell each owner which of its nodes we reference, and learn which of
	// ours the peers reference.
	reqCounts := make([]int, np)
	for p := 0; p < np; p++ {
		reqCounts[p] = d.extPtr[p+1] - d.extPtr[p]
	}
	sendCounts := c.AlltoallInt(reqCounts)

	tag := c.NextTag()
	for p := 0; p < np; p++ {
		if p != rank && reqCounts[p] > 0 {
			c.SendInts(p, tag, ids[d.extPtr[p]:d.extPtr[p+1]])
		}
	}
	for p := 0; p < np; p++ {
		if p != rank && sendCounts[p] > 0 {
			wanted := c.RecvInts(p, tag)
			local := make([]int, len(wanted))
			for i, id := range wanted {
				if id < ownerRange[rank] || id >= ownerRange[rank+1] {
					panic(fmt.Sprintf("bvec: rank %d asked %d for node %d it does not own",
						p, rank, id))
				}
				local[i] = id - ownerRange[rank]
			}
			d.sendIDs[p] = local
		}
	}
	return
}

// Indices returns the ghost list, ascending.
func (d *Distributor) Indices() *IndexSet { return d.ext }

// Dim is the ghost node count.
func (d *Distributor) Dim() int { return d.ext.Len() }

func (d *Distributor) Comm() comm.Comm { return d.m.Comm() }

type ctxState int

const (
	ctxIdle ctxState = iota
	ctxForward
	ctxReverse
)

// ScatterCtx pairs the plans with message buffers and requests for one
// in-flight scatter. Contexts must not be shared between concurrent
// operations; create one per vector.
type ScatterCtx struct {
	d     *Distributor
	bsize int
	tag   int
	// ownedBufs[p] stages blocks for the owned side of the transfer (the
	// nodes in sendIDs[p]); ghostBufs[p] stages the ghost runs.
	ownedBufs [][]float64
	ghostBufs [][]float64
	reqs      []comm.Request
	state     ctxState
}

// CreateCtx allocates the paired message buffers for block size bsize.
// Collective: the context tag must agree across ranks.
func (d *Distributor) CreateCtx(bsize int) (ctx *ScatterCtx) {
	var (
		c  = d.m.Comm()
		np = c.Size()
	)
	if bsize < 1 {
		panic(fmt.Sprintf("bvec: block size %d out of range", bsize))
	}
	ctx = &ScatterCtx{
		d:         d,
		bsize:     bsize,
		tag:       c.NextTag(),
		ownedBufs: make([][]float64, np),
		ghostBufs: make([][]float64, np),
	}
	for p := 0; p < np; p++ {
		if n := len(d.sendIDs[p]); n > 0 {
			ctx.ownedBufs[p] = make([]float64, bsize*n)
		}
		if n := d.extPtr[p+1] - d.extPtr[p]; n > 0 {
			ctx.ghostBufs[p] = make([]float64, bsize*n)
		}
	}
	return
}

func (ctx *ScatterCtx) enter(next ctxState) {
	if ctx.state != ctxIdle {
		panic("bvec: scatter already in flight on this context")
	}
	ctx.state = next
}

func (ctx *ScatterCtx) leave(cur ctxState) {
	if ctx.state != cur {
		panic("bvec: scatter end does not match the in-flight begin")
	}
	for _, r := range ctx.reqs {
		r.Wait()
	}
	ctx.reqs = ctx.reqs[:0]
	ctx.state = ctxIdle
}

// BeginForward starts the owner -> ghost transfer: post receives for the
// ghost runs, pack the requested owned blocks and send.
func (d *Distributor) BeginForward(ctx *ScatterCtx, owned, ghost []Scalar) {
	var (
		c     = d.m.Comm()
		np    = c.Size()
		b     = ctx.bsize
	)
	ctx.check(d, owned, ghost)
	ctx.enter(ctxForward)
	for p := 0; p < np; p++ {
		if buf := ctx.ghostBufs[p]; buf != nil {
			ctx.reqs = append(ctx.reqs, c.Irecv(p, ctx.tag, buf))
		}
	}
	for p := 0; p < np; p++ {
		if ids := d.sendIDs[p]; ids != nil {
			buf := ctx.ownedBufs[p]
			for i, node := range ids {
				copy(buf[b*i:b*(i+1)], owned[b*node:b*(node+1)])
			}
			ctx.reqs = append(ctx.reqs, c.Isend(p, ctx.tag, buf))
		}
	}
}

// EndForward waits for the transfer and assigns the staged runs into the
// ghost array.
func (d *Distributor) EndForward(ctx *ScatterCtx, owned, ghost []Scalar) {
	var (
		np = d.m.Comm().Size()
		b  = ctx.bsize
	)
	ctx.leave(ctxForward)
	for p := 0; p < np; p++ {
		if buf := ctx.ghostBufs[p]; buf != nil {
			copy(ghost[b*d.extPtr[p]:b*d.extPtr[p+1]], buf)
		}
	}
}

// BeginReverse starts the ghost -> owner transfer: the ghost runs travel
// back to their owners, which accumulate or assign them in EndReverse.
func (d *Distributor) BeginReverse(ctx *ScatterCtx, ghost, owned []Scalar, op Op) {
	var (
		c  = d.m.Comm()
		np = c.Size()
		b  = ctx.bsize
	)
	ctx.check(d, owned, ghost)
	ctx.enter(ctxReverse)
	for p := 0; p < np; p++ {
		if buf := ctx.ownedBufs[p]; buf != nil {
			ctx.reqs = append(ctx.reqs, c.Irecv(p, ctx.tag, buf))
		}
	}
	for p := 0; p < np; p++ {
		if buf := ctx.ghostBufs[p]; buf != nil {
			copy(buf, ghost[b*d.extPtr[p]:b*d.extPtr[p+1]])
			ctx.reqs = append(ctx.reqs, c.Isend(p, ctx.tag, buf))
		}
	}
}

// EndReverse waits and applies the received blocks to the owned array.
// Under AddValues the reduction is commutative, so peer arrival order does
// not matter; under InsertValues the caller is responsible for a single
// writer per node.
func (d *Distributor) EndReverse(ctx *ScatterCtx, ghost, owned []Scalar, op Op) {
	var (
		np = d.m.Comm().Size()
		b  = ctx.bsize
	)
	ctx.leave(ctxReverse)
	for p := 0; p < np; p++ {
		ids := d.sendIDs[p]
		if ids == nil {
			continue
		}
		buf := ctx.ownedBufs[p]
		for i, node := range ids {
			src := buf[b*i : b*(i+1)]
			dst := owned[b*node : b*(node+1)]
			if op == AddValues {
				for k := range src {
					dst[k] += src[k]
				}
			} else {
				copy(dst, src)
			}
		}
	}
}

func (ctx *ScatterCtx) check(d *Distributor, owned, ghost []Scalar) {
	if ctx.d != d {
		panic("bvec: context belongs to a different distributor")
	}
	if len(ghost) != ctx.bsize*d.ext.Len() {
		panic(fmt.Sprintf("bvec: ghost array length %d, want %d",
			len(ghost), ctx.bsize*d.ext.Len()))
	}
	if len(owned) < ctx.bsize*d.m.Dim() {
		panic(fmt.Sprintf("bvec: owned array length %d, want %d",
			len(owned), ctx.bsize*d.m.Dim()))
	}
}
