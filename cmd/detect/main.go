package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"fooddetect/internal/app"
	"fooddetect/internal/config"
	"fooddetect/internal/logger"
	"fooddetect/internal/service/predict"
	"fooddetect/internal/service/storage"
	"fooddetect/internal/translate"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] image...\n\nRuns food detection on local images and stores the results under STATIC_DIR.\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	quiet := flag.Bool("quiet", false, "Only print the detected dishes")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	log.SetFlags(0)
	logs := logger.NewNop()

	store, err := storage.NewFileStore(cfg)
	if err != nil {
		log.Fatalf("Failed to prepare storage: %v", err)
	}

	translations, err := translate.Load(cfg.TranslationsPath)
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	ctx := context.Background()
	detector, err := app.NewDetector(ctx, cfg, logs)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer detector.Close()

	svc := predict.NewService(store, detector, translations, logs)

	failed := 0
	for _, path := range flag.Args() {
		if err := detectFile(ctx, svc, path, *quiet); err != nil {
			log.Printf("%s: %v", path, err)
			failed++
		}
	}

	if failed > 0 {
		detector.Close()
		os.Exit(1)
	}
}

func detectFile(ctx context.Context, svc *predict.Service, path string, quiet bool) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	resp, err := svc.Predict(ctx, filepath.Base(path), file)
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("%s\n", path)
		fmt.Printf("  upload: %s\n", resp.UploadImage)
		fmt.Printf("  result: %s\n", resp.ResultImage)
	}
	for _, entry := range resp.Detected {
		fmt.Printf("  - %s\n", entry)
	}
	return nil
}
