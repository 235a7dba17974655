package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type SolverParameters struct {
	Title         string  `yaml:"Title"`
	NumNodes      int     `yaml:"NumNodes"`
	BlockSize     int     `yaml:"BlockSize"`
	NumRanks      int     `yaml:"NumRanks"`
	Tolerance     float64 `yaml:"Tolerance"`
	MaxIterations int     `yaml:"MaxIterations"`
	// DependentLoad, when nonzero, is applied at a hanging node midway
	// along the domain and spread onto its constituents
	DependentLoad float64 `yaml:"DependentLoad"`
}

func (sp *SolverParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, sp)
}

func (sp *SolverParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", sp.Title)
	fmt.Printf("[%d]\t\t\t= NumNodes\n", sp.NumNodes)
	fmt.Printf("[%d]\t\t\t= BlockSize\n", sp.BlockSize)
	fmt.Printf("[%d]\t\t\t= NumRanks\n", sp.NumRanks)
	fmt.Printf("%8.2e\t\t= Tolerance\n", sp.Tolerance)
	fmt.Printf("[%d]\t\t\t= MaxIterations\n", sp.MaxIterations)
	fmt.Printf("%8.5f\t\t= DependentLoad\n", sp.DependentLoad)
}
