package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"diondoct/internal/raw"
	"diondoct/pkg/config"
	"diondoct/pkg/geometry"
	"diondoct/pkg/reader"
)

func main() {
	// Parse command line arguments
	xmlPath := flag.String("xml", "", "Path to the Diondo XML metadata file")
	projectionDir := flag.String("dir", "", "Directory containing the RAW projection files")
	configPath := flag.String("config", "diondoct.yaml", "Optional YAML configuration file")
	centreSlice := flag.Bool("centre", false, "Read only the central detector row of every projection")
	parallel := flag.Bool("parallel", false, "Read full frames across a worker pool")
	workers := flag.Int("workers", 0, "Worker pool size for -parallel (default: half the CPU cores)")
	dtype := flag.String("dtype", "", "RAW sample encoding: uint8, uint16 or uint32 (default: uint16)")
	rangeSel := flag.String("range", "", "Index range selection as start:stop[:step]")
	indexSel := flag.Int("index", -1, "Single projection index selection")
	angleSel := flag.String("angles", "", "Comma-separated angle selection in degrees")
	trailing := flag.String("trailing", "", "Trailing RAW file policy: dropLast or keepAll")
	outPath := flag.String("out", "", "Write the loaded array as a little-endian float32 RAW dump")
	quiet := flag.Bool("quiet", false, "Suppress the per-frame progress indicator")
	flag.Parse()

	// Validate inputs
	if *xmlPath == "" || *projectionDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration; command line flags override it
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dtype != "" {
		cfg.Reader.ElementType = *dtype
	}
	if *trailing != "" {
		cfg.Reader.TrailingFilePolicy = *trailing
	}
	if *parallel {
		cfg.Processing.Parallel = true
	}
	if *workers > 0 {
		cfg.Processing.Workers = *workers
	}
	if *outPath != "" {
		cfg.Output.DumpPath = *outPath
	}
	if *quiet {
		cfg.Reader.Verbose = false
	}

	elemType, err := raw.ParseElementType(cfg.Reader.ElementType)
	if err != nil {
		log.Fatalf("Invalid element type: %v", err)
	}
	policy, err := reader.ParseTrailingFilePolicy(cfg.Reader.TrailingFilePolicy)
	if err != nil {
		log.Fatalf("Invalid trailing file policy: %v", err)
	}
	sel, err := parseSelection(*rangeSel, *indexSel, *angleSel)
	if err != nil {
		log.Fatalf("Invalid selection: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("DIONDO CONE-BEAM CT PROJECTION READER")
	fmt.Println("================================")

	r, err := reader.New(*xmlPath, *projectionDir,
		reader.WithTrailingFilePolicy(policy),
		reader.WithVerbose(cfg.Reader.Verbose))
	if err != nil {
		log.Fatalf("Failed to set up reader: %v", err)
	}

	meta := r.Metadata()
	fmt.Printf("Projections: %d, panel %dx%d px, pixel pitch %gx%g mm\n",
		meta.NumProjections, meta.NumPixelsH, meta.NumPixelsV, meta.PixelSizeH, meta.PixelSizeV)
	fmt.Printf("Source-object %g mm, source-detector %g mm\n",
		meta.SourceToObject, meta.SourceToDetector)

	// Run the selected read path
	startTime := time.Now()
	var data *geometry.AcquisitionData
	if *centreSlice {
		fmt.Println("Reading central slice across all angles...")
		data, err = r.ReadCentreSlice(elemType)
	} else {
		fmt.Println("Reading projection frames...")
		data, err = r.Read(sel, reader.ReadOptions{
			ElementType: elemType,
			Parallel:    cfg.Processing.Parallel,
			Workers:     cfg.Processing.Workers,
		})
	}
	if err != nil {
		log.Fatalf("Read failed: %v", err)
	}
	elapsed := time.Since(startTime)

	stats := data.Summary()
	fmt.Printf("\nLoaded array of shape %v in %.2f seconds\n", data.Shape, elapsed.Seconds())
	fmt.Printf("Angles: %d over [%g, %g] %s\n",
		data.Geometry.NumAngles(),
		data.Geometry.Angles[0],
		data.Geometry.Angles[data.Geometry.NumAngles()-1],
		data.Geometry.AngleUnit)
	fmt.Printf("Intensity: min %.1f, max %.1f, mean %.2f, stddev %.2f\n",
		stats.Min, stats.Max, stats.Mean, stats.StdDev)

	if cfg.Output.DumpPath != "" {
		if err := dumpArray(cfg.Output.DumpPath, data); err != nil {
			log.Fatalf("Failed to write dump: %v", err)
		}
		fmt.Printf("Float32 dump written to: %s\n", cfg.Output.DumpPath)
	}
}

// parseSelection builds a SelectionSpec from the mutually exclusive
// selection flags. With none given, everything is read.
func parseSelection(rangeSel string, indexSel int, angleSel string) (reader.SelectionSpec, error) {
	given := 0
	for _, set := range []bool{rangeSel != "", indexSel >= 0, angleSel != ""} {
		if set {
			given++
		}
	}
	if given > 1 {
		return nil, fmt.Errorf("use at most one of -range, -index, -angles")
	}

	switch {
	case rangeSel != "":
		parts := strings.Split(rangeSel, ":")
		if len(parts) != 2 && len(parts) != 3 {
			return nil, fmt.Errorf("range %q is not start:stop[:step]", rangeSel)
		}
		nums := make([]int, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("range %q: %w", rangeSel, err)
			}
			nums[i] = n
		}
		sel := reader.IndexRange{Start: nums[0], Stop: nums[1]}
		if len(nums) == 3 {
			sel.Step = nums[2]
		}
		return sel, nil

	case indexSel >= 0:
		return reader.SingleIndex{Index: indexSel}, nil

	case angleSel != "":
		var degrees []float64
		for _, p := range strings.Split(angleSel, ",") {
			deg, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil || math.IsNaN(deg) {
				return nil, fmt.Errorf("angle list %q: bad value %q", angleSel, p)
			}
			degrees = append(degrees, deg)
		}
		return reader.AngleList{Degrees: degrees}, nil
	}
	return reader.AllAngles{}, nil
}

// dumpArray writes the loaded intensities as little-endian float32, the same
// flat layout the scanner uses for its own RAW files.
func dumpArray(path string, data *geometry.AcquisitionData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, data.Array); err != nil {
		return fmt.Errorf("failed to write dump data: %w", err)
	}
	return nil
}
