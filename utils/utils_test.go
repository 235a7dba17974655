package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDynBuffer(t *testing.T) {
	db := NewDynBuffer[int](2)
	db.Add(1)
	db.Add(2)
	db.Add(3) // past the estimate
	assert.Equal(t, 3, db.Len())
	assert.Equal(t, []int{1, 2, 3}, db.Cells())
	db.Reset()
	assert.Equal(t, 0, db.Len())
	db.Add(9)
	assert.Equal(t, []int{9}, db.Cells())
}

func TestIndex(t *testing.T) {
	r := NewRange(2, 5)
	assert.Equal(t, Index{2, 3, 4, 5}, r)
	assert.Equal(t, Index{12, 13, 14, 15}, r.Add(10))
	assert.True(t, r.Contains(4))
	assert.False(t, r.Contains(6))
	assert.Equal(t, 3, len(NewIndex(3)))
}
