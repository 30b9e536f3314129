// Package reader loads Diondo cone-beam CT scans: an XML sidecar describing
// the acquisition and a directory of header-less RAW projection frames. It
// derives the full-scan cone-beam geometry from the sidecar and assembles
// selected projections into float32 acquisition data, either frame-by-frame
// or through a reduced-I/O central-slice path.
package reader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"diondoct/internal/raw"
	"diondoct/pkg/geometry"
)

// ErrNoProjections reports that no RAW frames remained after enumeration.
// Errors carrying it also satisfy errors.Is(err, fs.ErrNotExist).
var ErrNoProjections = errors.New("no RAW projection files")

// TrailingFilePolicy controls handling of the lexicographically last RAW
// file. The Diondo acquisition tool leaves a trailing artifact file that is
// not a real projection, so DropLast is the default.
type TrailingFilePolicy int

const (
	DropLast TrailingFilePolicy = iota
	KeepAll
)

// ParseTrailingFilePolicy converts a configuration string into a policy.
func ParseTrailingFilePolicy(s string) (TrailingFilePolicy, error) {
	switch s {
	case "dropLast", "":
		return DropLast, nil
	case "keepAll":
		return KeepAll, nil
	}
	return 0, fmt.Errorf("unknown trailing file policy %q", s)
}

// Reader provides access to one Diondo scan. All state is established by New
// and read-only afterwards, so a Reader is safe for concurrent use.
type Reader struct {
	xmlPath       string
	projectionDir string
	meta          ScanMetadata
	fullGeometry  *geometry.AcquisitionGeometry
	policy        TrailingFilePolicy
	verbose       bool
}

// Option adjusts reader construction.
type Option func(*Reader)

// WithTrailingFilePolicy overrides the default DropLast policy.
func WithTrailingFilePolicy(p TrailingFilePolicy) Option {
	return func(r *Reader) { r.policy = p }
}

// WithVerbose enables the per-frame progress indicator on sequential reads.
func WithVerbose(v bool) Option {
	return func(r *Reader) { r.verbose = v }
}

// New parses the XML sidecar, derives the full-scan geometry and returns a
// fully-formed reader. The projection directory is only touched by the read
// methods, matching the acquisition workflow where frames may still be
// arriving when the sidecar is first inspected.
func New(xmlPath, projectionDir string, opts ...Option) (*Reader, error) {
	meta, err := ReadMetadata(xmlPath)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		xmlPath:       xmlPath,
		projectionDir: projectionDir,
		meta:          meta,
		policy:        DropLast,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.fullGeometry = BuildGeometry(meta)
	return r, nil
}

// Metadata returns the parsed sidecar parameters.
func (r *Reader) Metadata() ScanMetadata {
	return r.meta
}

// Geometry returns an independent copy of the full-scan geometry.
func (r *Reader) Geometry() *geometry.AcquisitionGeometry {
	return r.fullGeometry.Copy()
}

// BuildGeometry derives the full-scan cone-beam geometry from scan metadata.
// The object sits at the origin with source and detector straddling it
// collinearly on the Y axis. The angular sequence is the Diondo convention:
// a full rotation starting at -90 degrees, i.e. NumProjections uniform
// samples over [-90, 270). The starting offset is fixed for this scanner
// model and not configurable.
func BuildGeometry(meta ScanMetadata) *geometry.AcquisitionGeometry {
	g := geometry.NewCone3D(
		geometry.Vector3{Y: -meta.SourceToObject},
		geometry.Vector3{Y: meta.SourceToDetector - meta.SourceToObject},
	)
	g.SetPanel(geometry.Panel{
		NumPixelsH: meta.NumPixelsH,
		NumPixelsV: meta.NumPixelsV,
		PixelSizeH: meta.PixelSizeH,
		PixelSizeV: meta.PixelSizeV,
		Origin:     geometry.OriginTopLeft,
	})
	g.SetLabels("angle", "vertical", "horizontal")
	g.SetAngles(geometry.UniformAngles(meta.NumProjections, -90, 360), "degree")
	return g
}

// rawFiles enumerates the RAW frames in lexicographic filename order and
// applies the trailing-file policy. An empty result is reported as a
// file-not-found condition, covering both a missing directory and a
// directory with no usable frames.
func (r *Reader) rawFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.projectionDir, "*.raw"))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.projectionDir, err)
	}
	sort.Strings(files)
	if r.policy == DropLast && len(files) > 0 {
		files = files[:len(files)-1]
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s: %w", ErrNoProjections, r.projectionDir, fs.ErrNotExist)
	}
	return files, nil
}

// ReadOptions configures a projection read.
type ReadOptions struct {
	// ElementType is the on-disk sample encoding. The zero value is the
	// scanner default, uint16.
	ElementType raw.ElementType

	// Parallel dispatches frame reads across a bounded worker pool instead
	// of reading sequentially.
	Parallel bool

	// Workers sets the pool size for parallel reads. Zero or negative
	// means the computed default of DefaultWorkers().
	Workers int
}

// DefaultWorkers returns the computed worker-pool default, half the
// available cores with a floor of one. Frame reads are I/O-bound, so more
// workers than that mostly contend on the disk.
func DefaultWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// Read loads the selected projection frames and returns them as float32
// acquisition data of shape (selected, NumPixelsV, NumPixelsH), paired with
// a geometry whose angular sequence is the matching subset of the full
// sequence, index-for-index with the data. A nil selection reads everything.
//
// In the parallel path all dispatched reads run to completion; the first
// failing frame's error (in submission order) is returned and no partial
// volume escapes.
func (r *Reader) Read(sel SelectionSpec, opts ReadOptions) (*geometry.AcquisitionData, error) {
	files, err := r.rawFiles()
	if err != nil {
		return nil, err
	}

	// Read-everything covers whatever is on disk; explicit selections are
	// resolved over the declared projection count and assume file/angle
	// parity.
	domain := r.meta.NumProjections
	switch sel.(type) {
	case nil, AllAngles:
		domain = len(files)
	}
	indices, err := resolveSelection(sel, domain)
	if err != nil {
		return nil, err
	}

	selected := make([]string, len(indices))
	for k, idx := range indices {
		if idx >= len(files) {
			return nil, fmt.Errorf("selection: index %d beyond %d RAW files", idx, len(files))
		}
		selected[k] = files[idx]
	}

	frameSize := r.meta.NumPixelsV * r.meta.NumPixelsH
	data := make([]float32, len(selected)*frameSize)

	if opts.Parallel {
		err = r.readFramesParallel(selected, opts, data, frameSize)
	} else {
		err = r.readFramesSequential(selected, opts, data, frameSize)
	}
	if err != nil {
		return nil, err
	}

	geom := r.fullGeometry.Copy()
	subset := make([]float64, len(indices))
	for k, idx := range indices {
		if idx >= r.fullGeometry.NumAngles() {
			return nil, fmt.Errorf("selection: index %d beyond %d angles", idx, r.fullGeometry.NumAngles())
		}
		subset[k] = r.fullGeometry.Angles[idx]
	}
	geom.SetAngles(subset, "degree")

	shape := []int{len(selected), r.meta.NumPixelsV, r.meta.NumPixelsH}
	return geometry.NewAcquisitionData(data, shape, geom)
}

func (r *Reader) readFramesSequential(files []string, opts ReadOptions, data []float32, frameSize int) error {
	for k, path := range files {
		if r.verbose {
			fmt.Printf("\rreading projection %d/%d", k+1, len(files))
		}
		if err := readFrame(path, opts.ElementType, data[k*frameSize:(k+1)*frameSize]); err != nil {
			return err
		}
	}
	if r.verbose {
		fmt.Println()
	}
	return nil
}

// readFramesParallel fans the frame reads out over a bounded pool. Each task
// writes only its own slot of data, so the only synchronisation needed is
// the pool join. There is no cancellation: dispatched reads always run to
// completion, then the first error in submission order wins.
func (r *Reader) readFramesParallel(files []string, opts ReadOptions, data []float32, frameSize int) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan int)
	errs := make([]error, len(files))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				errs[k] = readFrame(files[k], opts.ElementType, data[k*frameSize:(k+1)*frameSize])
			}
		}()
	}
	for k := range files {
		jobs <- k
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// readFrame reads one RAW file as a flat buffer of dst's length and decodes
// it into dst. The file is opened, fully read and closed within the call; no
// handle outlives it.
func readFrame(path string, typ raw.ElementType, dst []float32) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading projection %s: %w", path, err)
	}
	if err := raw.DecodeInto(dst, buf, typ); err != nil {
		return fmt.Errorf("projection %s: %w", path, err)
	}
	return nil
}
