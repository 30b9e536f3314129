package reader

import (
	"encoding/xml"
	"fmt"
	"os"
)

// ScanMetadata holds the acquisition parameters parsed from the Diondo XML
// sidecar file. Distances are in millimetres. It is created once during
// reader construction and never mutated afterwards.
type ScanMetadata struct {
	SourceToDetector float64
	SourceToObject   float64
	ObjectToDetector float64

	NumProjections int
	NumPixelsH     int
	NumPixelsV     int
	PixelSizeH     float64
	PixelSizeV     float64
}

// The sidecar schema. Pointer fields distinguish an absent element from a
// zero value so missing elements can be reported by name.
type diondoXML struct {
	Geometrie *geometrieXML `xml:"Geometrie"`
	Recon     *reconXML     `xml:"Recon"`
}

type geometrieXML struct {
	SourceDetectorDist *float64 `xml:"SourceDetectorDist"`
	SourceObjectDist   *float64 `xml:"SourceObjectDist"`
	ObjectDetectorDist *float64 `xml:"ObjectDetectorDist"`
}

type reconXML struct {
	ProjectionCount      *int     `xml:"ProjectionCount"`
	ProjectionDimX       *int     `xml:"ProjectionDimX"`
	ProjectionDimY       *int     `xml:"ProjectionDimY"`
	ProjectionPixelSizeX *float64 `xml:"ProjectionPixelSizeX"`
	ProjectionPixelSizeY *float64 `xml:"ProjectionPixelSizeY"`
}

// ReadMetadata parses the Diondo XML sidecar at xmlPath. A missing file is
// reported with an error satisfying errors.Is(err, fs.ErrNotExist); missing
// or non-numeric elements are fatal structural errors.
func ReadMetadata(xmlPath string) (ScanMetadata, error) {
	data, err := os.ReadFile(xmlPath)
	if err != nil {
		return ScanMetadata{}, fmt.Errorf("reading scan metadata: %w", err)
	}

	var doc diondoXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return ScanMetadata{}, fmt.Errorf("parsing %s: %w", xmlPath, err)
	}

	if doc.Geometrie == nil {
		return ScanMetadata{}, fmt.Errorf("%s: missing Geometrie element", xmlPath)
	}
	if doc.Recon == nil {
		return ScanMetadata{}, fmt.Errorf("%s: missing Recon element", xmlPath)
	}

	missing := func(name string) error {
		return fmt.Errorf("%s: missing element %s", xmlPath, name)
	}
	g, r := doc.Geometrie, doc.Recon
	switch {
	case g.SourceDetectorDist == nil:
		return ScanMetadata{}, missing("Geometrie/SourceDetectorDist")
	case g.SourceObjectDist == nil:
		return ScanMetadata{}, missing("Geometrie/SourceObjectDist")
	case g.ObjectDetectorDist == nil:
		return ScanMetadata{}, missing("Geometrie/ObjectDetectorDist")
	case r.ProjectionCount == nil:
		return ScanMetadata{}, missing("Recon/ProjectionCount")
	case r.ProjectionDimX == nil:
		return ScanMetadata{}, missing("Recon/ProjectionDimX")
	case r.ProjectionDimY == nil:
		return ScanMetadata{}, missing("Recon/ProjectionDimY")
	case r.ProjectionPixelSizeX == nil:
		return ScanMetadata{}, missing("Recon/ProjectionPixelSizeX")
	case r.ProjectionPixelSizeY == nil:
		return ScanMetadata{}, missing("Recon/ProjectionPixelSizeY")
	}

	meta := ScanMetadata{
		SourceToDetector: *g.SourceDetectorDist,
		SourceToObject:   *g.SourceObjectDist,
		ObjectToDetector: *g.ObjectDetectorDist,
		NumProjections:   *r.ProjectionCount,
		NumPixelsH:       *r.ProjectionDimX,
		NumPixelsV:       *r.ProjectionDimY,
		PixelSizeH:       *r.ProjectionPixelSizeX,
		PixelSizeV:       *r.ProjectionPixelSizeY,
	}

	if meta.NumProjections < 1 {
		return ScanMetadata{}, fmt.Errorf("%s: ProjectionCount %d out of range", xmlPath, meta.NumProjections)
	}
	if meta.NumPixelsH < 1 || meta.NumPixelsV < 1 {
		return ScanMetadata{}, fmt.Errorf("%s: projection dimensions %dx%d out of range",
			xmlPath, meta.NumPixelsH, meta.NumPixelsV)
	}

	return meta, nil
}
