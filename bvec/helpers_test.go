package bvec

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/SeiyonArulampalam/tacs/comm"
)

func runRanks(t *testing.T, np int, f func(c comm.Comm)) {
	t.Helper()
	var (
		ranks = comm.NewGroup(np)
		wg    sync.WaitGroup
	)
	for _, r := range ranks {
		wg.Add(1)
		go func(c *comm.Rank) {
			defer wg.Done()
			f(c)
		}(r)
	}
	wg.Wait()
}

// countingComm counts the allreduce calls passing through it, shared
// across the wrappers of one group.
type countingComm struct {
	comm.Comm
	allreduces *int64
}

func (c *countingComm) AllreduceSum(local, global []float64) {
	atomic.AddInt64(c.allreduces, 1)
	c.Comm.AllreduceSum(local, global)
}

func runCountedRanks(t *testing.T, np int, f func(c comm.Comm)) (allreduces int64) {
	t.Helper()
	var (
		ranks = comm.NewGroup(np)
		wg    sync.WaitGroup
	)
	for _, r := range ranks {
		wg.Add(1)
		go func(c *comm.Rank) {
			defer wg.Done()
			f(&countingComm{Comm: c, allreduces: &allreduces})
		}(r)
	}
	wg.Wait()
	return atomic.LoadInt64(&allreduces)
}
