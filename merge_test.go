// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre_test

import (
	"fmt"
	"testing"

	"github.com/creachadair/fibre"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// allModes returns every sequence of modes of length n.
func allModes(n int) [][]fibre.Mode {
	if n == 0 {
		return [][]fibre.Mode{nil}
	}
	var out [][]fibre.Mode
	for _, tail := range allModes(n - 1) {
		for _, m := range []fibre.Mode{fibre.Input, fibre.Output, fibre.ReturnValue} {
			out = append(out, append([]fibre.Mode{m}, tail...))
		}
	}
	return out
}

func TestMergeExhaustive(t *testing.T) {
	for n := range 7 {
		for _, modes := range allModes(n) {
			// Label each element by its source and position.
			var ins, outs, want []string
			for _, m := range modes {
				switch m {
				case fibre.Input:
					v := fmt.Sprintf("in%d", len(ins))
					ins = append(ins, v)
					want = append(want, v)
				case fibre.Output:
					v := fmt.Sprintf("out%d", len(outs))
					outs = append(outs, v)
					want = append(want, v)
				}
			}
			got, err := fibre.Merge(modes, ins, outs)
			if err != nil {
				t.Fatalf("Merge %v: unexpected error: %v", modes, err)
			}
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Merge %v (-want, +got):\n%s", modes, diff)
			}

			// Too few inputs or outputs.
			if len(ins) != 0 {
				if _, err := fibre.Merge(modes, ins[1:], outs); err == nil {
					t.Errorf("Merge %v: short inputs did not fail", modes)
				}
			}
			if len(outs) != 0 {
				if _, err := fibre.Merge(modes, ins, outs[1:]); err == nil {
					t.Errorf("Merge %v: short outputs did not fail", modes)
				}
			}

			// Leftover inputs or outputs.
			if _, err := fibre.Merge(modes, append(ins, "extra"), outs); err == nil {
				t.Errorf("Merge %v: extra input did not fail", modes)
			}
			if _, err := fibre.Merge(modes, ins, append(outs, "extra")); err == nil {
				t.Errorf("Merge %v: extra output did not fail", modes)
			}
		}
	}
}

func TestMergeInvalidMode(t *testing.T) {
	got, err := fibre.Merge([]fibre.Mode{fibre.Input, 0}, []int{1}, nil)
	if err == nil {
		t.Errorf("Merge: got %v, want error", got)
	}
}
