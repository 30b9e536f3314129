// Package geometry describes cone-beam acquisition geometry and the data
// containers that pair projection intensities with it. It covers the subset
// of the usual tomography framework contract needed by the Diondo reader:
// cone-beam geometry from explicit source/detector positions, a panel with
// pixel counts and pitch, an angular sequence with an explicit unit,
// value-semantic copies, and vertical-centre slice extraction.
package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Vector3 is a position in scanner coordinates, in millimetres.
// The rotation axis is Z; the source-detector axis at angle zero is Y.
type Vector3 struct {
	X, Y, Z float64
}

// PanelOrigin names the detector corner that holds pixel (0, 0).
type PanelOrigin string

const (
	OriginTopLeft    PanelOrigin = "top-left"
	OriginBottomLeft PanelOrigin = "bottom-left"
)

// Panel describes the detector pixel grid.
type Panel struct {
	// NumPixelsH and NumPixelsV are the pixel counts along the horizontal
	// and vertical detector axes.
	NumPixelsH int
	NumPixelsV int

	// PixelSizeH and PixelSizeV are the physical pixel pitch in mm.
	PixelSizeH float64
	PixelSizeV float64

	Origin PanelOrigin
}

// AcquisitionGeometry is a cone-beam acquisition description: source and
// detector positions straddling the object at the origin, the detector
// panel, dimension labels, and the angular sequence of the scan.
type AcquisitionGeometry struct {
	SourcePosition   Vector3
	DetectorPosition Vector3
	Panel            Panel
	Labels           []string
	Angles           []float64
	AngleUnit        string
}

// NewCone3D creates a cone-beam geometry from explicit source and detector
// positions. Panel, labels and angles are attached afterwards.
func NewCone3D(source, detector Vector3) *AcquisitionGeometry {
	return &AcquisitionGeometry{
		SourcePosition:   source,
		DetectorPosition: detector,
	}
}

// SetPanel attaches the detector panel description.
func (g *AcquisitionGeometry) SetPanel(p Panel) {
	g.Panel = p
}

// SetLabels attaches the dimension labels in data-axis order.
func (g *AcquisitionGeometry) SetLabels(labels ...string) {
	g.Labels = append([]string(nil), labels...)
}

// SetAngles attaches the angular sequence. The slice is copied so later
// mutation of the argument cannot alias into the geometry.
func (g *AcquisitionGeometry) SetAngles(angles []float64, unit string) {
	g.Angles = append([]float64(nil), angles...)
	g.AngleUnit = unit
}

// NumAngles returns the length of the angular sequence.
func (g *AcquisitionGeometry) NumAngles() int {
	return len(g.Angles)
}

// Copy returns an independent deep copy of the geometry.
func (g *AcquisitionGeometry) Copy() *AcquisitionGeometry {
	c := *g
	c.Labels = append([]string(nil), g.Labels...)
	c.Angles = append([]float64(nil), g.Angles...)
	return &c
}

// CentreSlice derives the reduced 2-D geometry obtained by collapsing the
// vertical detector dimension to its centre row. The angular sequence is
// preserved; the vertical label disappears.
func (g *AcquisitionGeometry) CentreSlice() *AcquisitionGeometry {
	c := g.Copy()
	c.Panel.NumPixelsV = 1
	labels := make([]string, 0, len(c.Labels))
	for _, l := range c.Labels {
		if l != "vertical" {
			labels = append(labels, l)
		}
	}
	c.Labels = labels
	return c
}

// AnglesInRadians returns the angular sequence converted to radians when the
// unit is degree, or a copy of the sequence as-is otherwise.
func (g *AcquisitionGeometry) AnglesInRadians() []float64 {
	out := append([]float64(nil), g.Angles...)
	if g.AngleUnit == "degree" {
		floats.Scale(degToRad, out)
	}
	return out
}

const degToRad = 0.017453292519943295

// UniformAngles generates n uniformly spaced samples over the half-open
// interval [start, start+span). A full rotation is span=360 in degree units.
func UniformAngles(n int, start, span float64) []float64 {
	if n <= 0 {
		return nil
	}
	angles := make([]float64, n)
	if n == 1 {
		angles[0] = start
		return angles
	}
	step := span / float64(n)
	floats.Span(angles, start, start+step*float64(n-1))
	return angles
}

// validateLabels reports whether the label count, when labels are present,
// matches the rank of the data being bound.
func (g *AcquisitionGeometry) validateLabels(rank int) error {
	if len(g.Labels) != 0 && len(g.Labels) != rank {
		return fmt.Errorf("geometry has %d labels for rank-%d data", len(g.Labels), rank)
	}
	return nil
}
