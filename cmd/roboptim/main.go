package main

import (
	"os"

	// Solver backends register themselves.
	_ "github.com/zhichaoleo/roboptim-core/internal/optimization/backends/dummy"
	_ "github.com/zhichaoleo/roboptim-core/internal/optimization/backends/gonum"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
