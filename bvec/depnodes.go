package bvec

import (
	"fmt"

	"github.com/james-bowman/sparse"
)

// DepNodes describes the dependent nodes: each dependent d expands to the
// weighted sum over real nodes conn[ptr[d]:ptr[d+1]] with the matching
// weights. A negative index -n in the scatter API addresses dependent
// n-1. Relations are static after construction.
type DepNodes struct {
	ptr     []int
	conn    []int
	weights []float64
}

func NewDepNodes(ptr, conn []int, weights []float64) (d *DepNodes) {
	if len(ptr) < 1 || ptr[0] != 0 {
		panic("bvec: dependent node pointer must start at 0")
	}
	for i := 1; i < len(ptr); i++ {
		if ptr[i] < ptr[i-1] {
			panic("bvec: dependent node pointer must be non-decreasing")
		}
	}
	nnz := ptr[len(ptr)-1]
	if len(conn) != nnz || len(weights) != nnz {
		panic(fmt.Sprintf("bvec: dependent conn/weights length %d/%d, want %d",
			len(conn), len(weights), nnz))
	}
	for _, c := range conn {
		if c < 0 {
			panic("bvec: dependent nodes may only reference real nodes")
		}
	}
	d = &DepNodes{
		ptr:     append([]int(nil), ptr...),
		conn:    append([]int(nil), conn...),
		weights: append([]float64(nil), weights...),
	}
	return
}

func (d *DepNodes) NumDepNodes() int { return len(d.ptr) - 1 }

// Nodes returns the CSR description and the dependent node count. The
// slices stay owned by the receiver.
func (d *DepNodes) Nodes() (ptr, conn []int, weights []float64, n int) {
	return d.ptr, d.conn, d.weights, len(d.ptr) - 1
}

// Matrix returns the relations as an nDep x numCols CSR so the dependent
// evaluation can be cross-checked against a sparse matrix-vector product.
func (d *DepNodes) Matrix(numCols int) *sparse.CSR {
	return sparse.NewCSR(d.NumDepNodes(), numCols,
		append([]int(nil), d.ptr...),
		append([]int(nil), d.conn...),
		append([]float64(nil), d.weights...))
}
