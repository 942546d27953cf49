// catalog-gen reads a text star catalog, narrows it per the pipeline's
// default configuration, and writes out a serialized MultiDatabase
// containing the narrowed catalog and its pair-distance database - the
// same file format internal/pipeline's Solve operation expects to load.
//
// Usage:
//
//	go run ./cmd/catalog-gen -catalog hip_main.txt -out lost.db
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/darkdragonsastro/lost/internal/catalog"
	"github.com/darkdragonsastro/lost/internal/database"
	"github.com/darkdragonsastro/lost/internal/eventbus"
	"github.com/darkdragonsastro/lost/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		catalogPath   = flag.String("catalog", "", "path to a pipe-delimited star catalog text file (required)")
		outPath       = flag.String("out", "lost.db", "path to write the serialized MultiDatabase to")
		maxMagnitude  = flag.Int("max-magnitude", 0, "magnitude cap in hundredths (0: pipeline default)")
		minSeparation = flag.Float64("min-separation", 0, "minimum angular separation in radians (0: pipeline default)")
		maxStars      = flag.Int("max-stars", 0, "keep only the N brightest stars (0 disables the filter)")
		numBins       = flag.Int("num-bins", 0, "k-vector bin count (0: pipeline default)")
	)
	flag.Parse()

	if *catalogPath == "" {
		flag.Usage()
		return fmt.Errorf("catalog-gen: -catalog is required")
	}

	f, err := os.Open(*catalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	cat, err := catalog.ParseText(f)
	if err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	fmt.Printf("Parsed %d stars from %s\n", len(cat), *catalogPath)

	cfg := pipeline.DefaultConfig()
	if *maxMagnitude != 0 {
		cfg.MaxMagnitude = *maxMagnitude
	}
	if *minSeparation != 0 {
		cfg.MinSeparation = *minSeparation
	}
	cfg.MaxStars = *maxStars
	if *numBins != 0 {
		cfg.NumBins = *numBins
	}

	bus := eventbus.NewInMemoryBus()
	ctx := context.Background()
	_, _ = bus.Subscribe(ctx, pipeline.TopicDatabaseBuilt, func(e eventbus.Event) {
		fmt.Printf("Database built: %+v\n", e.Data)
	})

	driver := pipeline.NewDriver(bus, database.NewInMemoryDB(), cfg)

	start := time.Now()
	buf, err := driver.BuildDatabase(ctx, cat)
	if err != nil {
		return fmt.Errorf("build database: %w", err)
	}
	fmt.Printf("Built database in %s (%d bytes)\n", time.Since(start), len(buf))

	if err := os.WriteFile(*outPath, buf, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Printf("Wrote %s\n", *outPath)
	return nil
}
