// Package Poisson1D solves -u'' = 1 on [0,1] with homogeneous Dirichlet
// ends by matrix-free conjugate gradients over the distributed block
// vector. Linear elements on a uniform grid make the nodal solution exact,
// which the tests exploit. The assembly path drives every scatter route:
// ghost reads through the forward phase, element accumulation through the
// reverse phase, and an optional hanging-node load through the dependent
// route.
package Poisson1D

import (
	"fmt"
	"math"
	"sort"

	"github.com/SeiyonArulampalam/tacs/bvec"
	"github.com/SeiyonArulampalam/tacs/comm"
	"github.com/SeiyonArulampalam/tacs/utils"
)

type Poisson struct {
	C       comm.Comm
	N       int // global node count
	Bsize   int
	Tol     float64
	MaxIter int
	// DepLoad is applied at the hanging node between the constituents
	// when nonzero
	DepLoad float64

	h      float64
	vm     *bvec.VarMap
	bcs    *bvec.BcMap
	dist   *bvec.Distributor
	dep    *bvec.DepNodes
	elems  []int // owned element left-node ids
	// History holds the residual norm per iteration
	History *utils.DynBuffer[float64]
}

// NewPoisson builds the per-rank problem. Collective: every rank of c must
// construct with identical parameters.
func NewPoisson(c comm.Comm, n, bsize int, tol float64, maxIter int,
	depLoad float64) (ps *Poisson) {
	if n < 3 {
		panic(fmt.Sprintf("Poisson1D: %d nodes is below the minimum of 3", n))
	}
	ps = &Poisson{
		C:       c,
		N:       n,
		Bsize:   bsize,
		Tol:     tol,
		MaxIter: maxIter,
		DepLoad: depLoad,
		h:       1 / float64(n-1),
		History: utils.NewDynBuffer[float64](maxIter),
	}
	ps.vm = bvec.NewVarMapUniform(c, n)

	var (
		rank       = c.Rank()
		ownerRange = ps.vm.OwnerRange()
		r0, r1     = ownerRange[rank], ownerRange[rank+1]
	)
	for e := r0; e < r1 && e < n-1; e++ {
		ps.elems = append(ps.elems, e)
	}

	// One hanging node halfway along the domain, averaging its flanking
	// real nodes
	if n >= 5 {
		m := n / 2
		ps.dep = bvec.NewDepNodes([]int{0, 2}, []int{m - 1, m + 1}, []float64{0.5, 0.5})
	}

	// Ghosts: the right neighbor node of the last owned element, plus any
	// dependent constituents this rank does not own
	ghost := map[int]bool{}
	if len(ps.elems) > 0 {
		if right := ps.elems[len(ps.elems)-1] + 1; !ps.vm.IsLocal(right) {
			ghost[right] = true
		}
	}
	if ps.dep != nil {
		_, conn, _, _ := ps.dep.Nodes()
		for _, id := range conn {
			if !ps.vm.IsLocal(id) {
				ghost[id] = true
			}
		}
	}
	ids := make([]int, 0, len(ghost))
	for id := range ghost {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ps.dist = bvec.NewDistributor(ps.vm, bvec.NewIndexSet(ids))

	ps.bcs = bvec.NewBcMap(2)
	allVars := utils.NewRange(0, bsize-1)
	for _, end := range []int{0, n - 1} {
		if ps.vm.IsLocal(end) {
			ps.bcs.AddBC(end-r0, end, allVars, nil)
		}
	}
	return
}

func (ps *Poisson) newVec() *bvec.BVec {
	return bvec.NewBVec(ps.vm, ps.Bsize, ps.bcs, ps.dist, ps.dep)
}

// assembleLoad builds the consistent load vector for f = 1 on every block
// component, plus the optional hanging-node load written by rank 0.
func (ps *Poisson) assembleLoad(b *bvec.BVec) {
	var (
		bs   = ps.Bsize
		half = ps.h / 2
		vals = make([]bvec.Scalar, 2*bs)
	)
	for k := 0; k < 2*bs; k++ {
		vals[k] = half
	}
	for _, e := range ps.elems {
		b.SetValues([]int{e, e + 1}, vals, bvec.AddValues)
	}
	if ps.dep != nil && ps.DepLoad != 0 && ps.C.Rank() == 0 {
		load := make([]bvec.Scalar, bs)
		for k := range load {
			load[k] = ps.DepLoad
		}
		b.SetValues([]int{-1}, load, bvec.AddValues)
	}
	b.BeginSetValues(bvec.AddValues)
	b.EndSetValues(bvec.AddValues)
	b.ApplyBCs()
}

// matVec computes q = A p element by element: distribute p so ghost reads
// are current, accumulate the element stiffness products, gather back to
// the owners and clamp the constrained rows.
func (ps *Poisson) matVec(q, p *bvec.BVec) {
	p.BeginDistributeValues()
	p.EndDistributeValues()
	q.ZeroEntries()
	var (
		bs   = ps.Bsize
		oh   = 1 / ps.h
		pe   = make([]bvec.Scalar, 2*bs)
		qe   = make([]bvec.Scalar, 2*bs)
	)
	for _, e := range ps.elems {
		nodes := []int{e, e + 1}
		p.GetValues(nodes, pe)
		for k := 0; k < bs; k++ {
			d := oh * (pe[k] - pe[bs+k])
			qe[k] = d
			qe[bs+k] = -d
		}
		q.SetValues(nodes, qe, bvec.AddValues)
	}
	q.BeginSetValues(bvec.AddValues)
	q.EndSetValues(bvec.AddValues)
	q.ApplyBCs()
}

// Solve runs CG to the residual tolerance and returns the solution along
// with the iteration count and final residual norm. Collective.
func (ps *Poisson) Solve() (u *bvec.BVec, iters int, res float64) {
	var (
		b = ps.newVec()
		r = ps.newVec()
		p = ps.newVec()
		q = ps.newVec()
	)
	u = ps.newVec()
	ps.assembleLoad(b)

	// u = 0, so r = b
	r.CopyValues(b)
	p.CopyValues(r)
	rsold := r.Dot(r)
	ps.History.Reset()
	ps.History.Add(math.Sqrt(rsold))

	for iters = 0; iters < ps.MaxIter; iters++ {
		ps.matVec(q, p)
		pq := p.Dot(q)
		if pq == 0 {
			break
		}
		alpha := rsold / pq
		u.Axpy(alpha, p)
		r.Axpy(-alpha, q)

		// One fused reduction for the residual and its load projection
		var mon [2]bvec.Scalar
		r.Mdot([]*bvec.BVec{r, b}, mon[:])
		rsnew := mon[0]
		res = math.Sqrt(rsnew)
		ps.History.Add(res)
		if res < ps.Tol {
			iters++
			break
		}
		p.Axpby(1, rsnew/rsold, r)
		rsold = rsnew
	}
	return
}

// Exact is the nodal solution u(x) = x(1-x)/2 without the hanging-node
// load; linear elements reproduce it exactly at the nodes.
func Exact(x float64) float64 {
	return 0.5 * x * (1 - x)
}
