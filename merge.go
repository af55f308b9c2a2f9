// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre

import "fmt"

// Merge reconstructs the argument list of a function call by interleaving
// inputs and outputs according to modes. Each Input mode takes the next
// unused element of inputs, and each Output mode takes the next unused
// element of outputs. ReturnValue modes are skipped.
//
// Merge reports an error if either list is exhausted before the modes are, or
// if either has elements left over afterward. On success, the length of the
// result is the number of Input and Output modes.
func Merge[T any](modes []Mode, inputs, outputs []T) ([]T, error) {
	out := make([]T, 0, len(inputs)+len(outputs))
	var ni, no int
	for i, m := range modes {
		switch m {
		case Input:
			if ni >= len(inputs) {
				return nil, fmt.Errorf("merge: inputs exhausted at slot %d", i)
			}
			out = append(out, inputs[ni])
			ni++
		case Output:
			if no >= len(outputs) {
				return nil, fmt.Errorf("merge: outputs exhausted at slot %d", i)
			}
			out = append(out, outputs[no])
			no++
		case ReturnValue:
			// not part of the argument list
		default:
			return nil, fmt.Errorf("merge: invalid %v at slot %d", m, i)
		}
	}
	if ni != len(inputs) || no != len(outputs) {
		return nil, fmt.Errorf("merge: %d inputs and %d outputs unused", len(inputs)-ni, len(outputs)-no)
	}
	return out, nil
}
