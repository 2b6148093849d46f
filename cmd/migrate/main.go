package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"sras/internal/config"
	"sras/internal/repository/sqlite"
)

// migrate creates or upgrades the violation database, registers the
// configured camera and prints what is stored.
func main() {
	cfg := config.Load()

	dbPath := flag.String("db", cfg.DBPath, "Database path")
	cameraName := flag.String("camera", cfg.CameraName, "Camera name to register")
	cameraURL := flag.String("url", cfg.CameraURL, "Camera stream URL")
	flag.Parse()

	fmt.Printf("Initializing database %s\n", *dbPath)

	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	cam, err := sqlite.NewCameraRepository(db).GetOrCreate(ctx, *cameraName, *cameraURL)
	if err != nil {
		log.Fatalf("Failed to register camera: %v", err)
	}
	fmt.Printf("✅ Camera %q registered with id %d (%s)\n", cam.Name, cam.ID, cam.StreamURL)

	stats, err := sqlite.NewViolationRepository(db, 0).Stats(ctx)
	if err != nil {
		log.Fatalf("Failed to read statistics: %v", err)
	}

	fmt.Printf("\n📊 Database Statistics:\n")
	fmt.Printf("   Total violations: %d\n", stats.Total)
	fmt.Printf("   With plate: %d\n", stats.WithPlate)
	fmt.Printf("   Total size: %d bytes\n", stats.TotalBytes)
	if len(stats.PerStatus) > 0 {
		fmt.Printf("   Per status:\n")
		for status, count := range stats.PerStatus {
			fmt.Printf("      - %s: %d\n", status, count)
		}
	}
	if len(stats.PerCamera) > 0 {
		fmt.Printf("   Per camera:\n")
		for camera, count := range stats.PerCamera {
			fmt.Printf("      - %s: %d violations\n", camera, count)
		}
	}
}
