/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/SeiyonArulampalam/tacs/bvec"
	"github.com/SeiyonArulampalam/tacs/comm"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

// benchCmd represents the bench command
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time the BLAS-1 kernels of the block vector",
	Run: func(cmd *cobra.Command, args []string) {
		size, _ := cmd.Flags().GetInt("size")
		reps, _ := cmd.Flags().GetInt("reps")
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		RunBench(size, reps)
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntP("size", "s", 1<<20, "local vector length")
	benchCmd.Flags().IntP("reps", "p", 100, "repetitions per kernel")
	benchCmd.Flags().Bool("profile", false, "write a CPU profile")
}

func RunBench(size, reps int) {
	var (
		c = comm.NewGroup(1)[0]
		v = bvec.NewBVecComm(c, size, 1)
		w = bvec.NewBVecComm(c, size, 1)
	)
	v.SeedRand(7)
	v.SetRand(-1, 1)
	w.SeedRand(11)
	w.SetRand(-1, 1)

	kernels := []struct {
		name string
		f    func() error
	}{
		{"axpy", func() error { v.Axpy(1.0001, w); return nil }},
		{"dot", func() error { _ = v.Dot(w); return nil }},
		{"norm", func() error { _ = v.Norm(); return nil }},
		{"axpby", func() error { v.Axpby(0.5, 0.5, w); return nil }},
	}
	for _, k := range kernels {
		bvec.ZeroFlopCount()
		start := time.Now()
		for i := 0; i < reps; i++ {
			k.f()
		}
		elapsed := time.Since(start)
		mflops := float64(bvec.FlopCount()) / elapsed.Seconds() / 1.e6
		fmt.Printf("%-6s %8.3fms  %10.1f MFLOPS", k.name,
			1000*elapsed.Seconds()/float64(reps), mflops)
		if instr, ok := countInstructions(k.f); ok {
			fmt.Printf("  %12d instructions", instr)
		}
		fmt.Printf("\n")
	}
}
