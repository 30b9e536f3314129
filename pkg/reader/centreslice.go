package reader

import (
	"fmt"
	"io"
	"os"

	"diondoct/internal/raw"
	"diondoct/pkg/geometry"
)

// ReadCentreSlice reads only the vertical-centre detector row of every RAW
// frame, producing float32 acquisition data of shape (NumProjections,
// NumPixelsH) paired with the vertical-collapsed 2-D geometry. The centre
// row index is NumPixelsV/2, which for even pixel counts is the row just
// below true centre.
//
// This path always covers all angles and reads sequentially: each read is a
// tiny seek+read dominated by per-file open/close overhead, so a worker pool
// buys nothing here.
func (r *Reader) ReadCentreSlice(typ raw.ElementType) (*geometry.AcquisitionData, error) {
	files, err := r.rawFiles()
	if err != nil {
		return nil, err
	}
	if len(files) > r.meta.NumProjections {
		return nil, fmt.Errorf("%d RAW files exceed %d declared projections",
			len(files), r.meta.NumProjections)
	}

	width := r.meta.NumPixelsH
	centreRow := r.meta.NumPixelsV / 2
	offset := int64(centreRow) * int64(width) * int64(typ.ItemSize())

	// Rows without a backing file stay zero, as when the acquisition was
	// interrupted before the full sweep.
	data := make([]float32, r.meta.NumProjections*width)
	rowBuf := make([]byte, width*typ.ItemSize())

	for i, path := range files {
		if err := readScanline(path, offset, rowBuf); err != nil {
			return nil, err
		}
		if err := raw.DecodeInto(data[i*width:(i+1)*width], rowBuf, typ); err != nil {
			return nil, fmt.Errorf("projection %s: %w", path, err)
		}
	}

	geom := r.fullGeometry.CentreSlice()
	shape := []int{r.meta.NumProjections, width}
	return geometry.NewAcquisitionData(data, shape, geom)
}

// readScanline reads exactly len(buf) bytes at the given offset of one RAW
// file. The handle is scoped to the call.
func readScanline(path string, offset int64, buf []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading projection %s: %w", path, err)
	}
	defer f.Close()

	// ReadAt may report EOF even when the row filled the buffer, e.g. when
	// the centre row is the last row of the file.
	if n, err := f.ReadAt(buf, offset); err != nil && !(err == io.EOF && n == len(buf)) {
		return fmt.Errorf("reading centre row of %s: %w", path, err)
	}
	return nil
}
