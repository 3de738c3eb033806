// Script to rebuild the mirror database from loop record files.
// Run with: go run scripts/rebuild-mirror.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gyrelabs/gyre/internal/config"
	"github.com/gyrelabs/gyre/internal/loop"
	"github.com/gyrelabs/gyre/internal/store"
)

func main() {
	// Find .gyre directory
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
		os.Exit(1)
	}

	gyreDir := filepath.Join(wd, loop.GyreDir)
	if _, err := os.Stat(gyreDir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No %s directory found in %s\n", loop.GyreDir, wd)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Database.SQLite.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	// Find all record files. Record files are the source of truth; the
	// mirror can always be reconstructed from them.
	loopsDir := filepath.Join(gyreDir, loop.LoopsDir)
	entries, err := os.ReadDir(loopsDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No loop records found to mirror")
			return
		}
		fmt.Fprintf(os.Stderr, "Error reading loops directory: %v\n", err)
		os.Exit(1)
	}

	var mirrored, skipped, errors int

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()

		l, err := loop.LoadFrom(wd, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", id, err)
			errors++
			continue
		}

		// Skip rows the mirror already has in their current shape. Row
		// timestamps carry second precision, record files nanoseconds.
		existing, err := st.GetLoop(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not check existing row for %s: %v\n", id, err)
		}
		if existing != nil && existing.UpdatedAt.Equal(l.UpdatedAt.Truncate(time.Second)) {
			skipped++
			continue
		}

		if err := st.SaveLoop(store.RowFromLoop(l)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not mirror %s: %v\n", id, err)
			errors++
			continue
		}

		mirrored++
	}

	fmt.Printf("\nRebuild complete:\n")
	fmt.Printf("  Mirrored: %d\n", mirrored)
	fmt.Printf("  Skipped (already current): %d\n", skipped)
	fmt.Printf("  Errors: %d\n", errors)
}
