package InputParameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	data := []byte(`
Title: "Poisson test case"
NumNodes: 101
BlockSize: 2
NumRanks: 4
Tolerance: 1.e-10
MaxIterations: 250
DependentLoad: 0.5
`)
	sp := &SolverParameters{}
	assert.NoError(t, sp.Parse(data))
	assert.Equal(t, "Poisson test case", sp.Title)
	assert.Equal(t, 101, sp.NumNodes)
	assert.Equal(t, 2, sp.BlockSize)
	assert.Equal(t, 4, sp.NumRanks)
	assert.Equal(t, 1.e-10, sp.Tolerance)
	assert.Equal(t, 250, sp.MaxIterations)
	assert.Equal(t, 0.5, sp.DependentLoad)

	assert.Error(t, sp.Parse([]byte("NumNodes: [not an int]")))
}
