package reader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diondoct/internal/raw"
)

const xmlTemplate = `<DiondoParameter>
  <Geometrie>
    <SourceDetectorDist>1000</SourceDetectorDist>
    <SourceObjectDist>250</SourceObjectDist>
    <ObjectDetectorDist>750</ObjectDetectorDist>
  </Geometrie>
  <Recon>
    <ProjectionCount>%d</ProjectionCount>
    <ProjectionDimX>%d</ProjectionDimX>
    <ProjectionDimY>%d</ProjectionDimY>
    <ProjectionPixelSizeX>0.2</ProjectionPixelSizeX>
    <ProjectionPixelSizeY>0.25</ProjectionPixelSizeY>
  </Recon>
</DiondoParameter>
`

// writeFrame writes pixel values as a header-less little-endian uint16 RAW
// file, the scanner's native frame format.
func writeFrame(t *testing.T, path string, vals []uint16) {
	t.Helper()
	buf := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

// frameValues returns the synthetic pixel values of frame i: pixel p holds
// i*1000+p, so every frame and every pixel are distinguishable.
func frameValues(i, frameSize int) []uint16 {
	vals := make([]uint16, frameSize)
	for p := range vals {
		vals[p] = uint16(i*1000 + p)
	}
	return vals
}

// writeScanFixture creates an XML sidecar plus numProj projection frames and
// one trailing artifact file, mirroring what the acquisition tool leaves on
// disk. Frames are dimX x dimY uint16.
func writeScanFixture(t *testing.T, numProj, dimX, dimY int) (xmlPath, projDir string) {
	t.Helper()
	dir := t.TempDir()

	xmlPath = filepath.Join(dir, "scan.xml")
	require.NoError(t, os.WriteFile(xmlPath,
		[]byte(fmt.Sprintf(xmlTemplate, numProj, dimX, dimY)), 0644))

	projDir = filepath.Join(dir, "projections")
	require.NoError(t, os.Mkdir(projDir, 0755))
	frameSize := dimX * dimY
	for i := 0; i < numProj; i++ {
		writeFrame(t, filepath.Join(projDir, fmt.Sprintf("proj_%04d.raw", i)),
			frameValues(i, frameSize))
	}
	// The artifact sorts last and must never show up in results.
	writeFrame(t, filepath.Join(projDir, fmt.Sprintf("proj_%04d.raw", numProj)),
		make([]uint16, frameSize))
	return xmlPath, projDir
}

func newTestReader(t *testing.T, numProj, dimX, dimY int, opts ...Option) *Reader {
	t.Helper()
	xmlPath, projDir := writeScanFixture(t, numProj, dimX, dimY)
	r, err := New(xmlPath, projDir, opts...)
	require.NoError(t, err)
	return r
}

func TestNewBuildsFullGeometry(t *testing.T) {
	r := newTestReader(t, 8, 3, 2)
	g := r.Geometry()

	assert.Equal(t, -250.0, g.SourcePosition.Y)
	assert.Equal(t, 750.0, g.DetectorPosition.Y)
	assert.Equal(t, 3, g.Panel.NumPixelsH)
	assert.Equal(t, 2, g.Panel.NumPixelsV)
	assert.Equal(t, 0.2, g.Panel.PixelSizeH)
	assert.Equal(t, 0.25, g.Panel.PixelSizeV)
	assert.Equal(t, []string{"angle", "vertical", "horizontal"}, g.Labels)
	assert.Equal(t, "degree", g.AngleUnit)

	require.Equal(t, 8, g.NumAngles())
	assert.Equal(t, -90.0, g.Angles[0])
	assert.Equal(t, 225.0, g.Angles[7])
	for i := 1; i < 8; i++ {
		assert.InDelta(t, 45.0, g.Angles[i]-g.Angles[i-1], 1e-9)
	}
}

func TestGeometryReturnsCopy(t *testing.T) {
	r := newTestReader(t, 4, 2, 2)
	g := r.Geometry()
	g.Angles[0] = 999
	assert.Equal(t, -90.0, r.Geometry().Angles[0])
}

func TestNewMissingXML(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.xml"), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "want fs.ErrNotExist, got %v", err)
}

func TestReadAll(t *testing.T) {
	const numProj, dimX, dimY = 4, 3, 2
	r := newTestReader(t, numProj, dimX, dimY)

	data, err := r.Read(nil, ReadOptions{})
	require.NoError(t, err)

	// The trailing artifact is dropped: leading dimension is files-1.
	assert.Equal(t, []int{numProj, dimY, dimX}, data.Shape)
	require.Len(t, data.Array, numProj*dimY*dimX)

	frameSize := dimX * dimY
	for i := 0; i < numProj; i++ {
		for p := 0; p < frameSize; p++ {
			assert.Equal(t, float32(i*1000+p), data.Array[i*frameSize+p],
				"frame %d pixel %d", i, p)
		}
	}

	// Subset geometry carries the whole angle sequence
	assert.Equal(t, r.Geometry().Angles, data.Geometry.Angles)
}

func TestReadSubsetAnglesTrackData(t *testing.T) {
	const numProj, dimX, dimY = 8, 2, 2
	frameSize := dimX * dimY

	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			r := newTestReader(t, numProj, dimX, dimY)
			full := r.Geometry()

			sel := IndexRange{Start: 2, Stop: 6}
			data, err := r.Read(sel, ReadOptions{Parallel: parallel, Workers: 3})
			require.NoError(t, err)

			require.Equal(t, []int{4, dimY, dimX}, data.Shape)
			for k, idx := range []int{2, 3, 4, 5} {
				// Angle k must come from the same index as frame k
				assert.Equal(t, full.Angles[idx], data.Geometry.Angles[k], "angle %d", k)
				assert.Equal(t, float32(idx*1000), data.Array[k*frameSize], "frame %d", k)
			}
		})
	}
}

func TestReadSingleIndex(t *testing.T) {
	r := newTestReader(t, 8, 2, 2)

	data, err := r.Read(SingleIndex{Index: 5}, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, data.Shape)
	assert.Equal(t, float32(5000), data.Array[0])
	assert.Equal(t, r.Geometry().Angles[5:6], data.Geometry.Angles)
}

func TestReadAngleList(t *testing.T) {
	r := newTestReader(t, 8, 2, 2)

	// 0 and 180 degrees map to indices 0 and 4 of an 8-projection sweep
	data, err := r.Read(AngleList{Degrees: []float64{0, 180}}, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, float32(0), data.Array[0])
	assert.Equal(t, float32(4000), data.Array[4])
	assert.Equal(t, []float64{-90, 90}, data.Geometry.Angles)
}

func TestReadParallelMatchesSequential(t *testing.T) {
	r := newTestReader(t, 9, 4, 3)

	seq, err := r.Read(nil, ReadOptions{})
	require.NoError(t, err)

	for _, workers := range []int{0, 1, 2, 8} {
		par, err := r.Read(nil, ReadOptions{Parallel: true, Workers: workers})
		require.NoError(t, err, "workers=%d", workers)
		assert.Equal(t, seq.Array, par.Array, "workers=%d", workers)
		assert.Equal(t, seq.Geometry.Angles, par.Geometry.Angles, "workers=%d", workers)
	}
}

func TestReadAllWithShortDirectory(t *testing.T) {
	// Fewer frames on disk than declared projections: a nil selection reads
	// what exists, and the subset geometry shrinks with it.
	const dimX, dimY = 2, 2
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "scan.xml")
	require.NoError(t, os.WriteFile(xmlPath,
		[]byte(fmt.Sprintf(xmlTemplate, 8, dimX, dimY)), 0644))
	projDir := filepath.Join(dir, "projections")
	require.NoError(t, os.Mkdir(projDir, 0755))
	for i := 0; i < 6; i++ { // 5 frames + artifact
		writeFrame(t, filepath.Join(projDir, fmt.Sprintf("proj_%04d.raw", i)),
			frameValues(i, dimX*dimY))
	}

	r, err := New(xmlPath, projDir)
	require.NoError(t, err)
	data, err := r.Read(nil, ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 5, data.Shape[0])
	assert.Equal(t, r.Geometry().Angles[:5], data.Geometry.Angles)
}

func TestReadIdempotent(t *testing.T) {
	r := newTestReader(t, 4, 3, 2)

	first, err := r.Read(nil, ReadOptions{})
	require.NoError(t, err)
	second, err := r.Read(nil, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.Array, second.Array)
	assert.Equal(t, first.Shape, second.Shape)
}

func TestReadEmptyFileSet(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "scan.xml")
	require.NoError(t, os.WriteFile(xmlPath,
		[]byte(fmt.Sprintf(xmlTemplate, 4, 2, 2)), 0644))

	t.Run("missing directory", func(t *testing.T) {
		r, err := New(xmlPath, filepath.Join(dir, "nope"))
		require.NoError(t, err)
		_, err = r.Read(nil, ReadOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
		assert.True(t, errors.Is(err, ErrNoProjections), "got %v", err)
	})

	t.Run("empty directory", func(t *testing.T) {
		empty := filepath.Join(dir, "empty")
		require.NoError(t, os.Mkdir(empty, 0755))
		r, err := New(xmlPath, empty)
		require.NoError(t, err)
		_, err = r.Read(nil, ReadOptions{})
		assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
	})

	t.Run("only the trailing artifact", func(t *testing.T) {
		one := filepath.Join(dir, "one")
		require.NoError(t, os.Mkdir(one, 0755))
		writeFrame(t, filepath.Join(one, "proj_0000.raw"), make([]uint16, 4))
		r, err := New(xmlPath, one)
		require.NoError(t, err)
		_, err = r.Read(nil, ReadOptions{})
		assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
	})
}

func TestReadTrailingFilePolicy(t *testing.T) {
	// Fixture without an artifact: exactly numProjections frames on disk.
	const numProj, dimX, dimY = 4, 2, 2
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "scan.xml")
	require.NoError(t, os.WriteFile(xmlPath,
		[]byte(fmt.Sprintf(xmlTemplate, numProj, dimX, dimY)), 0644))
	projDir := filepath.Join(dir, "projections")
	require.NoError(t, os.Mkdir(projDir, 0755))
	for i := 0; i < numProj; i++ {
		writeFrame(t, filepath.Join(projDir, fmt.Sprintf("proj_%04d.raw", i)),
			frameValues(i, dimX*dimY))
	}

	keep, err := New(xmlPath, projDir, WithTrailingFilePolicy(KeepAll))
	require.NoError(t, err)
	data, err := keep.Read(nil, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, numProj, data.Shape[0])

	// Under DropLast the last real frame becomes unreachable.
	drop, err := New(xmlPath, projDir)
	require.NoError(t, err)
	_, err = drop.Read(SingleIndex{Index: numProj - 1}, ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beyond")
}

func TestReadTruncatedFile(t *testing.T) {
	r := newTestReader(t, 4, 3, 2)

	// Truncate frame 2 to half a frame
	path := filepath.Join(r.projectionDir, "proj_0002.raw")
	require.NoError(t, os.WriteFile(path, make([]byte, 6), 0644))

	_, err := r.Read(nil, ReadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proj_0002.raw")

	_, err = r.Read(nil, ReadOptions{Parallel: true, Workers: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proj_0002.raw")
}

func TestParseTrailingFilePolicy(t *testing.T) {
	p, err := ParseTrailingFilePolicy("dropLast")
	require.NoError(t, err)
	assert.Equal(t, DropLast, p)

	p, err = ParseTrailingFilePolicy("keepAll")
	require.NoError(t, err)
	assert.Equal(t, KeepAll, p)

	p, err = ParseTrailingFilePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropLast, p)

	_, err = ParseTrailingFilePolicy("dropFirst")
	assert.Error(t, err)
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}

func TestReadUint8Frames(t *testing.T) {
	const numProj, dimX, dimY = 2, 2, 2
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "scan.xml")
	require.NoError(t, os.WriteFile(xmlPath,
		[]byte(fmt.Sprintf(xmlTemplate, numProj, dimX, dimY)), 0644))
	projDir := filepath.Join(dir, "projections")
	require.NoError(t, os.Mkdir(projDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "a.raw"), []byte{1, 2, 3, 4}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "b.raw"), []byte{5, 6, 7, 8}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "c.raw"), make([]byte, 4), 0644))

	r, err := New(xmlPath, projDir)
	require.NoError(t, err)
	data, err := r.Read(nil, ReadOptions{ElementType: raw.Uint8})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, data.Array)
}
