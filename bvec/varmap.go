package bvec

import (
	"fmt"

	"github.com/SeiyonArulampalam/tacs/comm"
)

// VarMap is the static node -> owning rank map. Rank p owns the contiguous
// global id range [ownerRange[p], ownerRange[p+1]).
type VarMap struct {
	c          comm.Comm
	ownerRange []int
}

// NewVarMap builds a map from an explicit ownership range of length
// Size()+1. The range must be ascending and start at zero.
func NewVarMap(c comm.Comm, ownerRange []int) (m *VarMap) {
	if len(ownerRange) != c.Size()+1 {
		panic(fmt.Sprintf("bvec: owner range length %d, want %d",
			len(ownerRange), c.Size()+1))
	}
	if ownerRange[0] != 0 {
		panic("bvec: owner range must start at 0")
	}
	for p := 0; p < c.Size(); p++ {
		if ownerRange[p+1] < ownerRange[p] {
			panic("bvec: owner range must be ascending")
		}
	}
	r := make([]int, len(ownerRange))
	copy(r, ownerRange)
	m = &VarMap{c: c, ownerRange: r}
	return
}

// NewVarMapUniform splits nNodes across the ranks with a maximum imbalance
// of one node, spreading the remainder over the leading ranks.
func NewVarMapUniform(c comm.Comm, nNodes int) (m *VarMap) {
	var (
		np    = c.Size()
		r     = make([]int, np+1)
		nPart = nNodes / np
		rem   = nNodes % np
	)
	for p := 0; p < np; p++ {
		r[p+1] = r[p] + nPart
		if p < rem {
			r[p+1]++
		}
	}
	m = &VarMap{c: c, ownerRange: r}
	return
}

func (m *VarMap) Comm() comm.Comm { return m.c }

func (m *VarMap) OwnerRange() []int { return m.ownerRange }

// Dim is the number of nodes owned by the local rank.
func (m *VarMap) Dim() int {
	rank := m.c.Rank()
	return m.ownerRange[rank+1] - m.ownerRange[rank]
}

// NumNodes is the global node count.
func (m *VarMap) NumNodes() int {
	return m.ownerRange[len(m.ownerRange)-1]
}

// Owner locates the rank owning a global id. The initial guess assumes a
// near-uniform split and is corrected by walking, the same probe used for
// partition buckets; with contiguous ranges the walk is O(1) for balanced
// maps.
func (m *VarMap) Owner(id int) (p int) {
	var (
		np = m.c.Size()
		n  = m.NumNodes()
	)
	if id < 0 || id >= n {
		panic(fmt.Sprintf("bvec: node id %d outside global range [0,%d)", id, n))
	}
	p = int(float64(np*id) / float64(n))
	if p >= np {
		p = np - 1
	}
	for !(m.ownerRange[p] <= id && id < m.ownerRange[p+1]) {
		if m.ownerRange[p] > id {
			p--
		} else {
			p++
		}
	}
	return
}

// IsLocal reports whether id lies in the calling rank's ownership range.
func (m *VarMap) IsLocal(id int) bool {
	rank := m.c.Rank()
	return id >= m.ownerRange[rank] && id < m.ownerRange[rank+1]
}
