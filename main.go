package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ocrbox/pkg/artifact"
	"ocrbox/pkg/kvstore"
	"ocrbox/pkg/logger"
	"ocrbox/pkg/ocr"
	"ocrbox/pkg/profile"
)

func main() {
	// Auto-load ./.env if present (no external dependency) before reading vars
	loadDotEnv()

	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := openStore()
	if err != nil {
		log.Fatal("record store init failed", "err", err)
	}
	engine, err := openEngine(log)
	if err != nil {
		log.Fatal("ocr engine init failed", "err", err)
	}

	profiles := profile.NewManager(store, log)
	artifacts := artifact.NewPipeline(store, profiles, engine, log)
	artifacts.BaseDir = uploadBaseDir()
	if v := os.Getenv("OCR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			artifacts.OCRTimeout = d
		} else {
			log.Warn("ignoring bad OCR_TIMEOUT", "value", v)
		}
	}

	s := &server{log: log, profiles: profiles, artifacts: artifacts}

	r := gin.Default()
	setupRoutes(r, s)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	log.Info("listening", "port", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("server exited", "err", err)
	}
}

// openStore picks the record store backend from KV_BACKEND: "redis"
// (default) or "postgres".
func openStore() (kvstore.RecordStore, error) {
	switch strings.ToLower(os.Getenv("KV_BACKEND")) {
	case "", "redis":
		return kvstore.NewRedis()
	case "postgres":
		return kvstore.NewPostgres()
	default:
		return kvstore.NewRedis()
	}
}

// openEngine picks the OCR engine from OCR_ENGINE: "vision" for the Cloud
// Vision API, anything else runs local Tesseract.
func openEngine(log *logger.Logger) (ocr.Engine, error) {
	switch strings.ToLower(os.Getenv("OCR_ENGINE")) {
	case "vision":
		log.Info("using cloud vision ocr engine")
		return ocr.NewVision(context.Background())
	default:
		t := ocr.NewTesseract()
		t.Binarize = envBool("OCR_BINARIZE")
		log.Info("using tesseract ocr engine", "binarize", t.Binarize)
		return t, nil
	}
}

func envBool(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// uploadBaseDir returns the base directory for retained uploads (configurable via UPLOAD_BASE env)
func uploadBaseDir() string {
	if v := os.Getenv("UPLOAD_BASE"); v != "" {
		return v
	}
	return "uploads"
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	path := ".env"
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// split on first '='
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
