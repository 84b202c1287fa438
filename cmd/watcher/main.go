// Watcher pushes image files dropped into a directory through the OCR
// pipeline for one profile. Useful for bulk-feeding scans without driving the
// HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"ocrbox/pkg/artifact"
	"ocrbox/pkg/kvstore"
	"ocrbox/pkg/logger"
	"ocrbox/pkg/ocr"
	"ocrbox/pkg/profile"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

func main() {
	dir := flag.String("dir", "drop", "directory to watch for images")
	profileID := flag.String("profile", "", "profile id that owns the uploads")
	engineName := flag.String("engine", os.Getenv("OCR_ENGINE"), "ocr engine (tesseract or vision)")
	flag.Parse()

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if *profileID == "" {
		log.Fatal("missing -profile")
	}

	store, err := openStore()
	if err != nil {
		log.Fatal("record store init failed", "err", err)
	}
	var engine ocr.Engine
	if strings.ToLower(*engineName) == "vision" {
		engine, err = ocr.NewVision(context.Background())
		if err != nil {
			log.Fatal("vision engine init failed", "err", err)
		}
	} else {
		t := ocr.NewTesseract()
		switch strings.ToLower(os.Getenv("OCR_BINARIZE")) {
		case "1", "true", "yes":
			t.Binarize = true
		}
		engine = t
	}

	profiles := profile.NewManager(store, log)
	pipeline := artifact.NewPipeline(store, profiles, engine, log)

	ctx := context.Background()
	if _, err := profiles.Get(ctx, *profileID); err != nil {
		log.Fatal("profile does not resolve", "profile", *profileID, "err", err)
	}

	// Process anything already sitting in the directory first.
	entries, _ := os.ReadDir(*dir)
	for _, e := range entries {
		if !e.IsDir() {
			ingest(ctx, log, pipeline, *profileID, filepath.Join(*dir, e.Name()))
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatal("watcher init failed", "err", err)
	}
	defer watcher.Close()
	if err := watcher.Add(*dir); err != nil {
		log.Fatal("watch failed", "dir", *dir, "err", err)
	}
	log.Info("watching", "dir", *dir, "profile", *profileID)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Writers may still be flushing when the event fires.
			time.Sleep(200 * time.Millisecond)
			ingest(ctx, log, pipeline, *profileID, ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", "err", err)
		}
	}
}

func ingest(ctx context.Context, log *logger.Logger, pipeline *artifact.Pipeline, profileID, path string) {
	if !imageExts[strings.ToLower(filepath.Ext(path))] {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("read failed", "path", path, "err", err)
		return
	}
	ref, err := pipeline.Upload(ctx, profileID, data)
	switch {
	case err == nil:
		log.Info("ingested", "path", path, "artifact", ref)
	case errors.Is(err, artifact.ErrOCRFailed):
		log.Warn("ingested but ocr failed", "path", path, "artifact", ref, "err", err)
	default:
		log.Error("ingest failed", "path", path, "err", err)
	}
}

func openStore() (kvstore.RecordStore, error) {
	if strings.ToLower(os.Getenv("KV_BACKEND")) == "postgres" {
		return kvstore.NewPostgres()
	}
	return kvstore.NewRedis()
}
