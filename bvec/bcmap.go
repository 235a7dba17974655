package bvec

import "fmt"

// BcMap records the Dirichlet boundary conditions shared by the vector and
// matrix classes. Records are append-only: five parallel buffers with a
// CSR pointer (varPtr) into the per-DoF vars/values lists.
type BcMap struct {
	local  []int
	global []int
	varPtr []int
	vars   []int
	values []Scalar
}

// NewBcMap sizes the buffers for an estimated number of boundary
// conditions; growth past the estimate is amortized doubling.
func NewBcMap(numBCs int) (b *BcMap) {
	if numBCs < 0 {
		numBCs = 0
	}
	b = &BcMap{
		local:  make([]int, 0, numBCs),
		global: make([]int, 0, numBCs),
		varPtr: make([]int, 1, numBCs+1),
		// Usually 6 or fewer dof per node
		vars:   make([]int, 0, 8*numBCs),
		values: make([]Scalar, 0, 8*numBCs),
	}
	return
}

// AddBC appends one record constraining len(bcVars) DoFs of the given node.
// A nil bcVals constrains to zero.
func (b *BcMap) AddBC(localVar, globalVar int, bcVars []int, bcVals []Scalar) {
	if bcVals != nil && len(bcVals) != len(bcVars) {
		panic(fmt.Sprintf("bvec: %d BC values for %d vars", len(bcVals), len(bcVars)))
	}
	b.local = append(b.local, localVar)
	b.global = append(b.global, globalVar)
	b.varPtr = append(b.varPtr, b.varPtr[len(b.varPtr)-1]+len(bcVars))
	b.vars = append(b.vars, bcVars...)
	if bcVals != nil {
		b.values = append(b.values, bcVals...)
	} else {
		for range bcVars {
			b.values = append(b.values, 0)
		}
	}
}

// BCs returns the five buffers and the record count. The buffers stay
// owned by the map; callers must not modify them.
func (b *BcMap) BCs() (local, global, varPtr, vars []int, values []Scalar, nbcs int) {
	return b.local, b.global, b.varPtr, b.vars, b.values, len(b.local)
}

func (b *BcMap) NumBCs() int { return len(b.local) }
