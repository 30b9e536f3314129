package reader

import (
	"fmt"
	"math"
)

// SelectionSpec selects a subset of projection indices for a read. The
// variants cover everything the scanner workflow needs: the whole scan, an
// index range, one index, or a list of nominal angles in degrees.
type SelectionSpec interface {
	isSelection()
}

// AllAngles selects every projection in on-disk order.
type AllAngles struct{}

// IndexRange selects the half-open index range [Start, Stop) with the given
// Step. A zero Step means 1.
type IndexRange struct {
	Start, Stop, Step int
}

// SingleIndex selects one projection by its literal index.
type SingleIndex struct {
	Index int
}

// AngleList selects projections by nominal angle in degrees. Each angle is
// mapped to the index round(angle/360*numProjections), which assumes a
// uniform full-rotation sweep; partial or non-uniform sweeps have no
// meaningful mapping here.
type AngleList struct {
	Degrees []float64
}

func (AllAngles) isSelection()   {}
func (IndexRange) isSelection()  {}
func (SingleIndex) isSelection() {}
func (AngleList) isSelection()   {}

// resolveSelection expands sel into concrete indices over the index domain
// [0, numProjections). A nil spec behaves like AllAngles. Resolved indices
// are bounds-checked here so the read loops never see an invalid index.
func resolveSelection(sel SelectionSpec, numProjections int) ([]int, error) {
	switch s := sel.(type) {
	case nil, AllAngles:
		indices := make([]int, numProjections)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil

	case IndexRange:
		step := s.Step
		if step == 0 {
			step = 1
		}
		if step < 0 {
			return nil, fmt.Errorf("selection: negative step %d", step)
		}
		if s.Start < 0 {
			return nil, fmt.Errorf("selection: negative start %d", s.Start)
		}
		stop := s.Stop
		if stop > numProjections {
			stop = numProjections
		}
		var indices []int
		for i := s.Start; i < stop; i += step {
			indices = append(indices, i)
		}
		if len(indices) == 0 {
			return nil, fmt.Errorf("selection: empty range [%d, %d) step %d", s.Start, s.Stop, step)
		}
		return indices, nil

	case SingleIndex:
		if s.Index < 0 || s.Index >= numProjections {
			return nil, fmt.Errorf("selection: index %d outside [0, %d)", s.Index, numProjections)
		}
		return []int{s.Index}, nil

	case AngleList:
		if len(s.Degrees) == 0 {
			return nil, fmt.Errorf("selection: empty angle list")
		}
		indices := make([]int, len(s.Degrees))
		for i, deg := range s.Degrees {
			idx := int(math.Round(deg / 360.0 * float64(numProjections)))
			if idx < 0 || idx >= numProjections {
				return nil, fmt.Errorf("selection: angle %g maps to index %d outside [0, %d)",
					deg, idx, numProjections)
			}
			indices[i] = idx
		}
		return indices, nil

	default:
		return nil, fmt.Errorf("selection: unsupported spec type %T", sel)
	}
}
