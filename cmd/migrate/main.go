package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"fooddetect/internal/config"
	"fooddetect/internal/repository/sqlite"
)

func main() {
	cfg := config.Load()
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("No database path given")
	}

	fmt.Printf("Applying schema to %s\n", *dbPath)

	// New creates the directory and applies the schema.
	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	stats, err := sqlite.NewPredictionRepository(db).GetStats()
	if err != nil {
		log.Fatalf("Failed to read stats: %v", err)
	}

	fmt.Printf("✅ Schema is up to date\n")
	fmt.Printf("\n📊 Database Statistics:\n")
	fmt.Printf("   Total predictions: %d\n", stats.TotalPredictions)
	fmt.Printf("   Total upload size: %d bytes\n", stats.TotalSizeBytes)

	if len(stats.ClassCounts) == 0 {
		return
	}

	classes := make([]string, 0, len(stats.ClassCounts))
	for name := range stats.ClassCounts {
		classes = append(classes, name)
	}
	sort.Slice(classes, func(i, j int) bool {
		if stats.ClassCounts[classes[i]] != stats.ClassCounts[classes[j]] {
			return stats.ClassCounts[classes[i]] > stats.ClassCounts[classes[j]]
		}
		return classes[i] < classes[j]
	})

	fmt.Printf("   Detections per dish:\n")
	for _, name := range classes {
		fmt.Printf("      - %s: %d\n", name, stats.ClassCounts[name])
	}
}
