package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/pmxsaem/saem"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: saemfit <dataset.csv> [niter]")
		return
	}
	path := os.Args[1]

	niter := 100
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			panic(err)
		}
		niter = n
	}

	ds, err := LoadCSVToDataset(path)
	if err != nil {
		panic(err)
	}
	fmt.Println("Loaded", len(ds.DV), "observations across", countSubjects(ds), "subjects")

	cfg, err := buildConfig(ds, niter)
	if err != nil {
		panic(err)
	}

	res, err := saem.Fit(context.Background(), cfg)
	if err != nil {
		panic(err)
	}

	PrintResult(res)
}

func countSubjects(ds *Dataset) int {
	seen := map[string]bool{}
	for _, id := range ds.ID {
		seen[id] = true
	}
	return len(seen)
}

// PrintResult mirrors the teacher's PrintCoefficients/PrintForecast idiom:
// one labeled block per reported quantity, with the matrices printed via
// mat.Formatted and Plambda and the iteration count printed plainly.
func PrintResult(res *saem.Result) {
	fmt.Println("\n=== Plambda ===")
	fmt.Println(res.Plambda)

	fmt.Println("\n=== Gamma1 ===")
	fmt.Printf("%v\n", mat.Formatted(res.Gamma1, mat.Prefix(" ")))

	fmt.Println("\n=== Residual model ===")
	fmt.Printf("%v\n", mat.Formatted(res.ResMat, mat.Prefix(" ")))

	fmt.Println("\n=== Iterations completed ===")
	fmt.Println(res.IterationsDone)
}
