package bvec

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/SeiyonArulampalam/tacs/comm"
	"gonum.org/v1/gonum/blas/blas64"
)

type vecState int

const (
	vecIdle vecState = iota
	vecSetInFlight
	vecDistInFlight
)

// BVec is the block-based parallel vector. It exclusively owns three
// arrays: the owned DoFs x, the ghost DoFs xExt for referenced non-owned
// nodes, and the scratch xDep for dependent nodes. The collaborators
// (VarMap, BcMap, Distributor, DepNodes) are shared and immutable for the
// vector's lifetime.
type BVec struct {
	c      comm.Comm
	varMap *VarMap
	bcs    *BcMap

	bsize int
	size  int
	x     []Scalar

	extDist    *Distributor
	extIndices *IndexSet
	extSize    int
	xExt       []Scalar
	extCtx     *ScatterCtx

	depNodes *DepNodes
	depSize  int
	xDep     []Scalar

	state vecState
	rng   *rand.Rand
}

// NewBVec creates a distributed vector over varMap with the given block
// size. bcs, extDist and depNodes may each be nil; the ghost and dependent
// arrays are allocated only when the corresponding collaborator is
// provided. All arrays start zeroed.
func NewBVec(varMap *VarMap, bsize int, bcs *BcMap, extDist *Distributor,
	depNodes *DepNodes) (v *BVec) {
	if bsize < 1 {
		panic(fmt.Sprintf("bvec: block size %d out of range", bsize))
	}
	v = &BVec{
		c:      varMap.Comm(),
		varMap: varMap,
		bcs:    bcs,
		bsize:  bsize,
		size:   bsize * varMap.Dim(),
		rng:    rand.New(rand.NewSource(1)),
	}
	v.x = make([]Scalar, v.size)
	if extDist != nil {
		v.extDist = extDist
		v.extIndices = extDist.Indices()
		v.extSize = bsize * extDist.Dim()
		v.xExt = make([]Scalar, v.extSize)
		v.extCtx = extDist.CreateCtx(bsize)
	}
	if depNodes != nil {
		v.depNodes = depNodes
		v.depSize = bsize * depNodes.NumDepNodes()
		v.xDep = make([]Scalar, v.depSize)
	}
	return
}

// NewBVecComm creates the bare form without a variable map, boundary
// conditions or scatter, used by the parallel matrix internals.
func NewBVecComm(c comm.Comm, localSize, bsize int) (v *BVec) {
	v = &BVec{
		c:     c,
		bsize: bsize,
		size:  localSize,
		x:     make([]Scalar, localSize),
		rng:   rand.New(rand.NewSource(1)),
	}
	return
}

func (v *BVec) Comm() comm.Comm   { return v.c }
func (v *BVec) VarMap() *VarMap   { return v.varMap }
func (v *BVec) BcMap() *BcMap     { return v.bcs }
func (v *BVec) BlockSize() int    { return v.bsize }
func (v *BVec) GetSize() int      { return v.size }
func (v *BVec) GetArray() []Scalar { return v.x }

func (v *BVec) local() blas64.Vector {
	return blas64.Vector{N: v.size, Data: v.x, Inc: 1}
}

func (v *BVec) checkIdle(opName string) {
	if v.state != vecIdle {
		panic(fmt.Sprintf("bvec: %s called with a scatter in flight", opName))
	}
}

// Norm computes the global 2-norm. Collective.
func (v *BVec) Norm() Scalar {
	v.checkIdle("Norm")
	res := blas64.Nrm2(v.local())
	local := [1]float64{res * res}
	var global [1]float64
	AddFlops(2 * v.size)
	v.c.AllreduceSum(local[:], global[:])
	return Scalar(math.Sqrt(global[0]))
}

// Dot computes the global bilinear product sum(x_i*w_i). Collective. A
// size mismatch is diagnosed on stderr and returns zero.
func (v *BVec) Dot(w *BVec) Scalar {
	v.checkIdle("Dot")
	if w.size != v.size {
		fmt.Fprintf(os.Stderr, "BVec.Dot error: the sizes must be the same\n")
		return 0
	}
	local := [1]float64{blas64.Dot(v.local(), w.local())}
	var global [1]float64
	AddFlops(2 * v.size)
	v.c.AllreduceSum(local[:], global[:])
	return Scalar(global[0])
}

// Mdot computes len(ws) dot products with a single fused allreduce, one
// latency for the whole batch. Collective.
func (v *BVec) Mdot(ws []*BVec, ans []Scalar) {
	v.checkIdle("Mdot")
	if len(ans) < len(ws) {
		panic(fmt.Sprintf("bvec: Mdot answer length %d for %d vectors", len(ans), len(ws)))
	}
	local := make([]float64, len(ws))
	for k, w := range ws {
		if w.size != v.size {
			fmt.Fprintf(os.Stderr, "BVec.Mdot error: the sizes must be the same\n")
			continue
		}
		local[k] = blas64.Dot(v.local(), w.local())
	}
	AddFlops(2 * len(ws) * v.size)
	v.c.AllreduceSum(local, ans[:len(ws)])
}

// Scale multiplies the owned array by alpha. Local.
func (v *BVec) Scale(alpha Scalar) {
	v.checkIdle("Scale")
	blas64.Scal(alpha, v.local())
	AddFlops(v.size)
}

// Axpy computes v <- alpha*w + v. Local.
func (v *BVec) Axpy(alpha Scalar, w *BVec) {
	v.checkIdle("Axpy")
	if w.size != v.size {
		fmt.Fprintf(os.Stderr, "BVec.Axpy error: the sizes must be the same\n")
		return
	}
	blas64.Axpy(alpha, w.local(), v.local())
	AddFlops(2 * v.size)
}

// Axpby computes v <- alpha*w + beta*v. Local.
func (v *BVec) Axpby(alpha, beta Scalar, w *BVec) {
	v.checkIdle("Axpby")
	if w.size != v.size {
		fmt.Fprintf(os.Stderr, "BVec.Axpby error: the sizes must be the same\n")
		return
	}
	for i, wi := range w.x {
		v.x[i] = beta*v.x[i] + alpha*wi
	}
	AddFlops(3 * v.size)
}

// CopyValues copies the owned array of w into v. Local.
func (v *BVec) CopyValues(w *BVec) {
	v.checkIdle("CopyValues")
	if w.size != v.size {
		fmt.Fprintf(os.Stderr, "BVec.CopyValues error: the sizes must be the same\n")
		return
	}
	blas64.Copy(w.local(), v.local())
}

// ZeroEntries zeroes the owned, ghost and dependent arrays.
func (v *BVec) ZeroEntries() {
	v.checkIdle("ZeroEntries")
	for i := range v.x {
		v.x[i] = 0
	}
	for i := range v.xExt {
		v.xExt[i] = 0
	}
	for i := range v.xDep {
		v.xDep[i] = 0
	}
}

// Set assigns val to every owned entry.
func (v *BVec) Set(val Scalar) {
	v.checkIdle("Set")
	for i := range v.x {
		v.x[i] = val
	}
}

// InitRand broadcasts a time seed from rank 0 so every rank runs the
// identical engine. Collective.
func (v *BVec) InitRand() {
	seed := v.c.BcastInt64(time.Now().UnixNano(), 0)
	v.rng = rand.New(rand.NewSource(seed))
}

// SeedRand seeds the shared engine explicitly on all ranks.
func (v *BVec) SeedRand(seed int64) {
	v.rng = rand.New(rand.NewSource(seed))
}

// SetRand fills the owned array with uniform draws over [lower, upper).
// The draw sequence is consumed globally in rank order, so the assembled
// global vector is identical for any rank count. A per-rank seeded engine
// would break that property; keep the engine from InitRand/SeedRand.
func (v *BVec) SetRand(lower, upper Scalar) {
	v.checkIdle("SetRand")
	if v.varMap == nil {
		for i := range v.x {
			v.x[i] = lower + (upper-lower)*v.rng.Float64()
		}
		return
	}
	var (
		rank       = v.c.Rank()
		ownerRange = v.varMap.OwnerRange()
	)
	for k := 0; k < v.c.Size(); k++ {
		if k != rank {
			// Burn the draws the owner consumes so the sequences align
			n := v.bsize * (ownerRange[k+1] - ownerRange[k])
			for i := 0; i < n; i++ {
				v.rng.Float64()
			}
		} else {
			for i := range v.x {
				v.x[i] = lower + (upper-lower)*v.rng.Float64()
			}
		}
	}
}

// ApplyBCs zeroes the owned DoFs named by the boundary condition map. The
// stored BC values are retained for matrix row modification; the vector
// side always clamps to zero. Ghost and dependent arrays are untouched.
func (v *BVec) ApplyBCs() {
	if v.bcs == nil || v.varMap == nil {
		return
	}
	var (
		rank       = v.c.Rank()
		ownerRange = v.varMap.OwnerRange()
	)
	_, global, varPtr, vars, _, nbcs := v.bcs.BCs()
	for i := 0; i < nbcs; i++ {
		if global[i] >= ownerRange[rank] && global[i] < ownerRange[rank+1] {
			off := v.bsize * (global[i] - ownerRange[rank])
			for k := varPtr[i]; k < varPtr[i+1]; k++ {
				v.x[off+vars[k]] = 0
			}
		}
	}
}

// SetValues writes one block of bsize scalars per index. Owned ids write
// into x, dependent ids (negative) into xDep, and ghost ids accumulate
// into xExt regardless of op: element contributions to the same ghost node
// must combine before the reverse scatter, and xExt is zeroed after it, so
// the insert variant is only meaningful on the owned and dependent routes.
func (v *BVec) SetValues(indices []int, vals []Scalar, op Op) {
	if v.varMap == nil {
		panic("bvec: SetValues requires a variable map")
	}
	if len(vals) != v.bsize*len(indices) {
		panic(fmt.Sprintf("bvec: %d values for %d indices with block size %d",
			len(vals), len(indices), v.bsize))
	}
	var (
		rank       = v.c.Rank()
		ownerRange = v.varMap.OwnerRange()
		b          = v.bsize
	)
	for i, id := range indices {
		src := vals[b*i : b*(i+1)]
		switch {
		case id >= ownerRange[rank] && id < ownerRange[rank+1]:
			dst := v.x[b*(id-ownerRange[rank]):]
			if op == InsertValues {
				copy(dst[:b], src)
			} else {
				for k := 0; k < b; k++ {
					dst[k] += src[k]
				}
			}
		case id < 0:
			dst := v.xDep[-b*(id+1):]
			if op == InsertValues {
				copy(dst[:b], src)
			} else {
				for k := 0; k < b; k++ {
					dst[k] += src[k]
				}
			}
		default:
			dst := v.xExt[b*v.extIndices.FindIndex(id):]
			for k := 0; k < b; k++ {
				dst[k] += src[k]
			}
		}
	}
}

// GetValues reads one block per index with the same routing as SetValues.
// External and dependent reads require a completed EndDistributeValues.
func (v *BVec) GetValues(indices []int, vals []Scalar) {
	if v.varMap == nil {
		panic("bvec: GetValues requires a variable map")
	}
	if len(vals) != v.bsize*len(indices) {
		panic(fmt.Sprintf("bvec: %d values for %d indices with block size %d",
			len(vals), len(indices), v.bsize))
	}
	var (
		rank       = v.c.Rank()
		ownerRange = v.varMap.OwnerRange()
		b          = v.bsize
	)
	for i, id := range indices {
		dst := vals[b*i : b*(i+1)]
		switch {
		case id >= ownerRange[rank] && id < ownerRange[rank+1]:
			copy(dst, v.x[b*(id-ownerRange[rank]):b*(id-ownerRange[rank])+b])
		case id < 0:
			copy(dst, v.xDep[-b*(id+1):-b*(id+1)+b])
		default:
			k := b * v.extIndices.FindIndex(id)
			copy(dst, v.xExt[k:k+b])
		}
	}
}

// BeginSetValues starts collecting written values to their owners. Under
// AddValues the dependent scratch blocks are first projected onto their
// constituent real nodes (owned or ghost), then the reverse scatter is
// posted.
func (v *BVec) BeginSetValues(op Op) {
	if v.state != vecIdle {
		panic("bvec: BeginSetValues with a scatter already in flight")
	}
	v.state = vecSetInFlight
	if v.depNodes != nil && op == AddValues {
		var (
			rank       = v.c.Rank()
			ownerRange = v.varMap.OwnerRange()
			b          = v.bsize
		)
		ptr, conn, weights, ndep := v.depNodes.Nodes()
		for i := 0; i < ndep; i++ {
			z := v.xDep[b*i : b*(i+1)]
			for jp := ptr[i]; jp < ptr[i+1]; jp++ {
				var dst []Scalar
				if conn[jp] >= ownerRange[rank] && conn[jp] < ownerRange[rank+1] {
					dst = v.x[b*(conn[jp]-ownerRange[rank]):]
				} else {
					dst = v.xExt[b*v.extIndices.FindIndex(conn[jp]):]
				}
				for k := 0; k < b; k++ {
					dst[k] += weights[jp] * z[k]
				}
			}
		}
	}
	if v.extDist != nil {
		v.extDist.BeginReverse(v.extCtx, v.xExt, v.x, op)
	}
}

// EndSetValues finishes the reverse scatter and zeroes the ghost array.
func (v *BVec) EndSetValues(op Op) {
	if v.state != vecSetInFlight {
		panic("bvec: EndSetValues without a matching BeginSetValues")
	}
	if v.extDist != nil {
		v.extDist.EndReverse(v.extCtx, v.xExt, v.x, op)
	}
	for i := range v.xExt {
		v.xExt[i] = 0
	}
	v.state = vecIdle
}

// BeginDistributeValues starts sending owner values to the ranks that
// reference them as ghosts.
func (v *BVec) BeginDistributeValues() {
	if v.state != vecIdle {
		panic("bvec: BeginDistributeValues with a scatter already in flight")
	}
	v.state = vecDistInFlight
	if v.extDist != nil {
		v.extDist.BeginForward(v.extCtx, v.x, v.xExt)
	}
}

// EndDistributeValues finishes the forward scatter and re-evaluates the
// dependent blocks from the fresh owned and ghost values.
func (v *BVec) EndDistributeValues() {
	if v.state != vecDistInFlight {
		panic("bvec: EndDistributeValues without a matching BeginDistributeValues")
	}
	if v.extDist != nil {
		v.extDist.EndForward(v.extCtx, v.x, v.xExt)
	}
	if v.depNodes != nil {
		var (
			rank       = v.c.Rank()
			ownerRange = v.varMap.OwnerRange()
			b          = v.bsize
		)
		ptr, conn, weights, ndep := v.depNodes.Nodes()
		for i := 0; i < ndep; i++ {
			z := v.xDep[b*i : b*(i+1)]
			for k := range z {
				z[k] = 0
			}
			for jp := ptr[i]; jp < ptr[i+1]; jp++ {
				var src []Scalar
				if conn[jp] >= ownerRange[rank] && conn[jp] < ownerRange[rank+1] {
					src = v.x[b*(conn[jp]-ownerRange[rank]):]
				} else {
					src = v.xExt[b*v.extIndices.FindIndex(conn[jp]):]
				}
				for k := 0; k < b; k++ {
					z[k] += weights[jp] * src[k]
				}
			}
		}
	}
	v.state = vecIdle
}
