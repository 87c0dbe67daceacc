package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chronolab/chronovm/pkg/vm/ir"
)

// loadProgram reads and decodes a program JSON file from path.
func loadProgram(path string) (ir.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Program{}, fmt.Errorf("failed to read program file: %w", err)
	}
	var program ir.Program
	if err := json.Unmarshal(data, &program); err != nil {
		return ir.Program{}, fmt.Errorf("failed to decode program JSON: %w", err)
	}
	return program, nil
}
