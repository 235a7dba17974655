package bvec

import (
	"math"
	"sync"
	"testing"

	"github.com/SeiyonArulampalam/tacs/comm"
	"github.com/stretchr/testify/assert"
)

// twoRankSetup is the topology of the end-to-end scenarios: two ranks,
// bsize 2, owner range [0,2,4], rank-dependent ghost sets and an optional
// dependent node averaging nodes 0 and 2.
func twoRankSetup(c comm.Comm, ext0, ext1 []int, withDep bool) (v *BVec) {
	m := NewVarMap(c, []int{0, 2, 4})
	ids := ext0
	if c.Rank() == 1 {
		ids = ext1
	}
	d := NewDistributor(m, NewIndexSet(ids))
	var dep *DepNodes
	if withDep {
		dep = NewDepNodes([]int{0, 2}, []int{0, 2}, []float64{0.5, 0.5})
	}
	v = NewBVec(m, 2, nil, d, dep)
	return
}

func TestAlgebraicInvariants(t *testing.T) {
	runRanks(t, 2, func(c comm.Comm) {
		m := NewVarMapUniform(c, 6)
		v := NewBVec(m, 2, nil, nil, nil)
		w := NewBVec(m, 2, nil, nil, nil)
		v.SeedRand(3)
		v.SetRand(-1, 1)
		w.SeedRand(5)
		w.SetRand(-1, 1)

		// |v|^2 = v.v and |a v| = |a| |v|
		nrm := v.Norm()
		assert.InDelta(t, nrm*nrm, v.Dot(v), 1.e-12)
		u := NewBVec(m, 2, nil, nil, nil)
		u.CopyValues(v)
		u.Scale(-3)
		assert.InDelta(t, 3*nrm, u.Norm(), 1.e-12)

		// axpy there and back restores v
		before := append([]Scalar(nil), v.GetArray()...)
		v.Axpy(0.7, w)
		v.Axpy(-0.7, w)
		for i, x := range v.GetArray() {
			assert.InDelta(t, before[i], x, 1.e-12)
		}

		// copyValues post-conditions
		u.CopyValues(w)
		assert.InDelta(t, w.Dot(w), u.Dot(u), 1.e-12)
		assert.InDelta(t, w.Dot(w), u.Dot(w), 1.e-12)

		// axpby with (1, 0) is a copy
		u.Axpby(1, 0, v)
		assert.InDelta(t, v.Dot(v), u.Dot(u), 1.e-12)

		v.ZeroEntries()
		assert.Equal(t, Scalar(0), v.Dot(v))
		assert.Equal(t, Scalar(0), v.Norm())

		v.Set(2)
		assert.InDelta(t, math.Sqrt(4*12), v.Norm(), 1.e-12)
	})
}

func TestSizeMismatchLeavesState(t *testing.T) {
	runRanks(t, 1, func(c comm.Comm) {
		v := NewBVec(NewVarMapUniform(c, 4), 1, nil, nil, nil)
		w := NewBVec(NewVarMapUniform(c, 3), 1, nil, nil, nil)
		v.Set(1)
		w.Set(1)
		assert.Equal(t, Scalar(0), v.Dot(w))
		v.Axpy(1, w)
		v.Axpby(1, 1, w)
		v.CopyValues(w)
		assert.InDelta(t, 2., v.Norm(), 1.e-12) // still all ones, length 4
	})
}

func TestMdotSingleAllreduce(t *testing.T) {
	n := runCountedRanks(t, 2, func(c comm.Comm) {
		m := NewVarMapUniform(c, 6)
		v := NewBVec(m, 1, nil, nil, nil)
		v.Set(1)
		ws := []*BVec{v, v, v}
		ans := make([]Scalar, 3)
		v.Mdot(ws, ans)
		vv := Scalar(6)
		assert.Equal(t, []Scalar{vv, vv, vv}, ans)
	})
	assert.Equal(t, int64(2), n, "one allreduce per rank for the whole batch")
}

// Scenario: rank 0 writes its owned blocks, rank 1 reads them as ghosts
// after the forward scatter; the norm is global on every rank.
func TestScenarioForward(t *testing.T) {
	runRanks(t, 2, func(c comm.Comm) {
		v := twoRankSetup(c, nil, []int{1}, false)
		if c.Rank() == 0 {
			v.SetValues([]int{0, 1}, []Scalar{1, 2, 3, 4}, InsertValues)
		}
		v.BeginDistributeValues()
		v.EndDistributeValues()
		if c.Rank() == 1 {
			got := make([]Scalar, 2)
			v.GetValues([]int{1}, got)
			assert.Equal(t, []Scalar{3, 4}, got)
		}
		assert.InDelta(t, math.Sqrt(30), v.Norm(), 1.e-12)
	})
}

// Scenario: a ghost write on rank 0 lands in rank 1's owned block under
// the reverse scatter, and the ghost array is zero afterwards.
func TestScenarioReverse(t *testing.T) {
	runRanks(t, 2, func(c comm.Comm) {
		v := twoRankSetup(c, []int{2}, nil, false)
		if c.Rank() == 1 {
			v.SetValues([]int{2}, []Scalar{1, 1}, InsertValues)
		}
		if c.Rank() == 0 {
			v.SetValues([]int{2}, []Scalar{10, 20}, InsertValues)
		}
		v.BeginSetValues(AddValues)
		v.EndSetValues(AddValues)
		if c.Rank() == 1 {
			got := make([]Scalar, 2)
			v.GetValues([]int{2}, got)
			assert.Equal(t, []Scalar{11, 21}, got)
		}
		if c.Rank() == 0 {
			got := make([]Scalar, 2)
			v.GetValues([]int{2}, got) // reads the zeroed ghost block
			assert.Equal(t, []Scalar{0, 0}, got)
		}
	})
}

// Scenario: a write at the dependent node spreads onto its constituents
// with the dependent weights.
func TestScenarioDependent(t *testing.T) {
	runRanks(t, 2, func(c comm.Comm) {
		v := twoRankSetup(c, []int{2}, []int{0}, true)
		if c.Rank() == 0 {
			v.SetValues([]int{-1}, []Scalar{8, 8}, AddValues)
		}
		v.BeginSetValues(AddValues)
		v.EndSetValues(AddValues)
		got := make([]Scalar, 2)
		if c.Rank() == 0 {
			v.GetValues([]int{0}, got)
		} else {
			v.GetValues([]int{2}, got)
		}
		assert.Equal(t, []Scalar{4, 4}, got)
	})
}

// Scenario: dependent values are recomputed from fresh owner data by the
// forward scatter.
func TestDependentEvaluation(t *testing.T) {
	runRanks(t, 2, func(c comm.Comm) {
		v := twoRankSetup(c, []int{2}, []int{0}, true)
		if c.Rank() == 0 {
			v.SetValues([]int{0}, []Scalar{2, 4}, InsertValues)
		} else {
			v.SetValues([]int{2}, []Scalar{6, 8}, InsertValues)
		}
		v.BeginDistributeValues()
		v.EndDistributeValues()
		got := make([]Scalar, 2)
		v.GetValues([]int{-1}, got)
		assert.Equal(t, []Scalar{4, 6}, got) // 0.5*(2,4) + 0.5*(6,8)
	})
}

// The ghost route accumulates even under INSERT; the behavior is relied
// on by repeated element contributions and must not be "fixed" silently.
func TestSetValuesGhostInsertAccumulates(t *testing.T) {
	runRanks(t, 2, func(c comm.Comm) {
		v := twoRankSetup(c, []int{2}, nil, false)
		if c.Rank() == 0 {
			v.SetValues([]int{2}, []Scalar{1, 1}, InsertValues)
			v.SetValues([]int{2}, []Scalar{1, 1}, InsertValues)
			got := make([]Scalar, 2)
			v.GetValues([]int{2}, got)
			assert.Equal(t, []Scalar{2, 2}, got)
		}
	})
}

func TestApplyBCs(t *testing.T) {
	runRanks(t, 2, func(c comm.Comm) {
		m := NewVarMap(c, []int{0, 2, 4})
		bcs := NewBcMap(1)
		if m.IsLocal(1) {
			bcs.AddBC(1, 1, []int{0}, nil)
		}
		v := NewBVec(m, 2, bcs, nil, nil)
		v.Set(5)
		v.ApplyBCs()
		x := v.GetArray()
		if c.Rank() == 0 {
			assert.Equal(t, []Scalar{5, 5, 0, 5}, x)
		} else {
			assert.Equal(t, []Scalar{5, 5, 5, 5}, x)
		}
	})
}

// The same broadcast seed must assemble the identical global vector for
// any rank count.
func TestSetRandReproducible(t *testing.T) {
	var (
		n  = 12
		b  = 2
		mu sync.Mutex
	)
	gather := func(np int) []Scalar {
		global := make([]Scalar, b*n)
		runRanks(t, np, func(c comm.Comm) {
			m := NewVarMapUniform(c, n)
			v := NewBVec(m, b, nil, nil, nil)
			v.SeedRand(12345)
			v.SetRand(0, 1)
			off := b * m.OwnerRange()[c.Rank()]
			mu.Lock()
			copy(global[off:], v.GetArray())
			mu.Unlock()
		})
		return global
	}
	ref := gather(1)
	for _, np := range []int{2, 4, 8} {
		assert.Equal(t, ref, gather(np), "np = %d", np)
	}
}

func TestStateMachine(t *testing.T) {
	runRanks(t, 1, func(c comm.Comm) {
		m := NewVarMapUniform(c, 2)
		d := NewDistributor(m, NewIndexSet(nil))
		v := NewBVec(m, 1, nil, d, nil)
		v.BeginDistributeValues()
		assert.Panics(t, func() { v.BeginDistributeValues() })
		assert.Panics(t, func() { v.BeginSetValues(AddValues) })
		assert.Panics(t, func() { v.EndSetValues(AddValues) })
		assert.Panics(t, func() { v.Norm() })
		assert.Panics(t, func() { v.Axpy(1, v) })
		v.EndDistributeValues()
		assert.Panics(t, func() { v.EndDistributeValues() })
		v.BeginSetValues(AddValues)
		assert.Panics(t, func() { v.EndDistributeValues() })
		v.EndSetValues(AddValues)
	})
}

func TestBareForm(t *testing.T) {
	runRanks(t, 2, func(c comm.Comm) {
		v := NewBVecComm(c, 3, 1)
		v.Set(1)
		assert.InDelta(t, math.Sqrt(6), v.Norm(), 1.e-12)
		assert.Panics(t, func() { v.SetValues([]int{0}, []Scalar{1}, AddValues) })
		assert.Panics(t, func() { v.GetValues([]int{0}, []Scalar{0}) })
	})
}
