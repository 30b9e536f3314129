package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AcquisitionData binds a float32 intensity array to the geometry it was
// acquired under. The leading data axis is the angle axis and must match the
// geometry's angular sequence element-for-element.
type AcquisitionData struct {
	// Array holds the intensities in row-major order.
	Array []float32

	// Shape gives the dimensions of Array, leading axis first.
	Shape []int

	Geometry *AcquisitionGeometry
}

// NewAcquisitionData validates that the array, shape and geometry agree and
// binds them. The leading shape entry must equal the geometry's angle count.
func NewAcquisitionData(array []float32, shape []int, geom *AcquisitionGeometry) (*AcquisitionData, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("acquisition data needs at least one dimension")
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= d
	}
	if n != len(array) {
		return nil, fmt.Errorf("array has %d elements, shape %v wants %d", len(array), shape, n)
	}
	if geom == nil {
		return nil, fmt.Errorf("acquisition data needs a geometry")
	}
	if shape[0] != geom.NumAngles() {
		return nil, fmt.Errorf("leading dimension %d does not match %d geometry angles",
			shape[0], geom.NumAngles())
	}
	if err := geom.validateLabels(len(shape)); err != nil {
		return nil, err
	}
	return &AcquisitionData{
		Array:    array,
		Shape:    append([]int(nil), shape...),
		Geometry: geom,
	}, nil
}

// Stats summarises the intensity distribution of an array.
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Summary computes intensity statistics over the whole array.
func (d *AcquisitionData) Summary() Stats {
	if len(d.Array) == 0 {
		return Stats{}
	}
	vals := make([]float64, len(d.Array))
	for i, v := range d.Array {
		vals[i] = float64(v)
	}
	mean, std := stat.MeanStdDev(vals, nil)
	return Stats{
		Min:    floats.Min(vals),
		Max:    floats.Max(vals),
		Mean:   mean,
		StdDev: std,
	}
}
