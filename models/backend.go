package models

import (
	"fmt"
)

// Tensor is a dense row-major tensor exchanged with a scoring backend.
// Exactly one of Float or Int holds the data.
type Tensor struct {
	Shape []int64
	Float []float32
	Int   []int64
}

// FloatTensor wraps float data with its shape
func FloatTensor(shape []int64, data []float32) Tensor {
	return Tensor{Shape: shape, Float: data}
}

// IntTensor2D flattens equal-length int64 rows into a [rows, cols] tensor
func IntTensor2D(rows [][]int64) Tensor {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	flat := make([]int64, 0, len(rows)*cols)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return Tensor{Shape: []int64{int64(len(rows)), int64(cols)}, Int: flat}
}

// NumElements returns the product of the shape
func (t Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Validate checks the data length against the shape
func (t Tensor) Validate() error {
	have := len(t.Float)
	if t.Int != nil {
		have = len(t.Int)
	}
	if have != t.NumElements() {
		return fmt.Errorf("tensor of shape %v holds %d elements", t.Shape, have)
	}
	return nil
}

// Backend is the opaque scoring backend: it maps named input tensors to named outputs.
// Implementations must be safe to call from one goroutine at a time at least.
type Backend interface {
	Run(inputs map[string]Tensor) (map[string]Tensor, error)
	Close() error
}

// Output returns the first output present under any of names
func Output(outputs map[string]Tensor, names ...string) (Tensor, error) {
	for _, name := range names {
		if t, ok := outputs[name]; ok {
			return t, nil
		}
	}
	return Tensor{}, fmt.Errorf("none of the outputs %v found in model output", names)
}

// CheckInputs fails when inputs holds a name the graph does not declare or lacks a
// declared one. token_type_ids may be left out when input_ids is given.
func CheckInputs(declared []string, inputs map[string]Tensor) error {
	known := make(map[string]bool, len(declared))
	for _, name := range declared {
		known[name] = true
		if _, ok := inputs[name]; ok {
			continue
		}
		if _, ok := inputs["input_ids"]; ok && name == "token_type_ids" {
			continue
		}
		return fmt.Errorf("missing input: %s", name)
	}
	for name := range inputs {
		if !known[name] {
			return fmt.Errorf("unexpected input: %s (graph declares %v)", name, declared)
		}
	}
	return nil
}
