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
	"os"
	"sync"

	"github.com/SeiyonArulampalam/tacs/InputParameters"
	"github.com/SeiyonArulampalam/tacs/bvec"
	"github.com/SeiyonArulampalam/tacs/comm"
	"github.com/SeiyonArulampalam/tacs/model_problems/Poisson1D"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the 1D Poisson model problem over an in-process rank group",
	Long: `
Runs matrix-free conjugate gradients for -u'' = 1 on [0,1] with the node
set partitioned across ranks, exercising the forward/reverse scatter, the
dependent node projection and the Dirichlet boundary conditions.

tacs solve -r 4 -n 101`,
	Run: func(cmd *cobra.Command, args []string) {
		sp := &InputParameters.SolverParameters{Title: "Poisson1D"}
		sp.NumRanks, _ = cmd.Flags().GetInt("ranks")
		sp.NumNodes, _ = cmd.Flags().GetInt("nodes")
		sp.BlockSize, _ = cmd.Flags().GetInt("bsize")
		sp.Tolerance, _ = cmd.Flags().GetFloat64("tolerance")
		sp.MaxIterations, _ = cmd.Flags().GetInt("maxiter")
		sp.DependentLoad, _ = cmd.Flags().GetFloat64("depload")
		if fname, _ := cmd.Flags().GetString("input"); fname != "" {
			data, err := os.ReadFile(fname)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			if err = sp.Parse(data); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		}
		sp.Print()
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		RunSolve(sp)
	},
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().IntP("ranks", "r", 2, "number of in-process ranks")
	solveCmd.Flags().IntP("nodes", "n", 101, "global node count")
	solveCmd.Flags().IntP("bsize", "b", 1, "scalar DoFs per node")
	solveCmd.Flags().Float64P("tolerance", "t", 1.e-10, "residual norm tolerance")
	solveCmd.Flags().IntP("maxiter", "m", 1000, "iteration limit")
	solveCmd.Flags().Float64("depload", 0, "load applied at the hanging node")
	solveCmd.Flags().StringP("input", "i", "", "YAML parameter file, overrides the flags")
	solveCmd.Flags().Bool("profile", false, "write a CPU profile")
}

// RunSolve drives one goroutine per rank, the thread-per-partition model.
func RunSolve(sp *InputParameters.SolverParameters) {
	var (
		ranks = comm.NewGroup(sp.NumRanks)
		wg    sync.WaitGroup
	)
	for _, r := range ranks {
		wg.Add(1)
		go func(c *comm.Rank) {
			defer wg.Done()
			ps := Poisson1D.NewPoisson(c, sp.NumNodes, sp.BlockSize,
				sp.Tolerance, sp.MaxIterations, sp.DependentLoad)
			u, iters, res := ps.Solve()
			norm := u.Norm()
			if c.Rank() == 0 {
				fmt.Printf("converged in %d iterations, |r| = %8.2e, |u| = %8.5f\n",
					iters, res, norm)
			}
			// Round-trip through the binary file format
			if err := u.WriteToFile("poisson1d.bvec"); err == nil {
				w := bvec.NewBVec(u.VarMap(), u.BlockSize(), u.BcMap(), nil, nil)
				if err = w.ReadFromFile("poisson1d.bvec"); err == nil {
					wn := w.Norm()
					if c.Rank() == 0 {
						fmt.Printf("file round trip |u| = %8.5f\n", wn)
					}
				}
			}
		}(r)
	}
	wg.Wait()
}
