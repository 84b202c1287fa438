// Package artifact runs the gated upload→OCR→store→retrieve pipeline. An
// upload is accepted only for a profile that already exists, and the artifact
// record always lands in a terminal state (complete or failed) once the OCR
// engine has been given its chance.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ocrbox/models"
	"ocrbox/pkg/kvstore"
	"ocrbox/pkg/logger"
	"ocrbox/pkg/ocr"
	"ocrbox/pkg/profile"
)

// ErrForbidden reports a gate-check failure: the supplied profile id does not
// resolve, so the upload is not permitted.
var ErrForbidden = errors.New("artifact: upload requires an existing profile")

// ErrOCRFailed reports that the image was accepted and recorded but the OCR
// engine could not extract text. The artifact record persists with status
// failed so the caller observes the failure instead of a 404.
var ErrOCRFailed = errors.New("artifact: ocr failed")

// Pipeline wires the record store, the profile gate and the OCR engine.
type Pipeline struct {
	store    kvstore.RecordStore
	profiles *profile.Manager
	engine   ocr.Engine
	log      *logger.Logger

	// BaseDir is where uploaded images are retained on disk. Retention is
	// best-effort; the artifact record is the source of truth.
	BaseDir string
	// OCRTimeout bounds the synchronous OCR invocation so a hung engine
	// cannot leave a record stuck at pending.
	OCRTimeout time.Duration
}

func NewPipeline(store kvstore.RecordStore, profiles *profile.Manager, engine ocr.Engine, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		profiles:   profiles,
		engine:     engine,
		log:        log.With("component", "artifact"),
		BaseDir:    "uploads",
		OCRTimeout: 30 * time.Second,
	}
}

// Upload gates the image on profile existence, records it as pending, runs
// OCR and settles the record to complete or failed. The returned reference
// (the profile id, single-artifact model) is valid whenever a record was
// written, including the ErrOCRFailed case. A repeat upload for the same
// profile overwrites the previous artifact.
func (p *Pipeline) Upload(ctx context.Context, profileID string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ocr.ErrEmptyImage
	}

	// Gate check. Nothing may be written and the engine must not be
	// invoked before this resolves.
	if _, err := p.profiles.Get(ctx, profileID); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return "", ErrForbidden
		}
		return "", err
	}

	now := time.Now().UTC()
	rec := models.ArtifactRecord{
		OwnerProfileID: profileID,
		Status:         models.StatusPending,
		ImagePath:      p.retainImage(profileID, image),
		ImageBytes:     len(image),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.writeRecord(ctx, &rec); err != nil {
		return "", err
	}

	ocrCtx := ctx
	if p.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ocrCtx, cancel = context.WithTimeout(ctx, p.OCRTimeout)
		defer cancel()
	}
	text, ocrErr := p.engine.ExtractText(ocrCtx, image)

	rec.UpdatedAt = time.Now().UTC()
	if ocrErr != nil {
		rec.Status = models.StatusFailed
		rec.Reason = ocrErr.Error()
		p.log.Warn("ocr failed", "profile", profileID, "err", ocrErr)
	} else {
		rec.Status = models.StatusComplete
		rec.Text = text
		p.log.Info("ocr complete", "profile", profileID, "chars", len(text))
	}
	// The terminal write must land even when the request context died
	// during the OCR call, or the record stays pending forever.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.writeRecord(settleCtx, &rec); err != nil {
		return "", err
	}
	if ocrErr != nil {
		return profileID, fmt.Errorf("%w: %v", ErrOCRFailed, ocrErr)
	}
	return profileID, nil
}

// GetResult fetches the artifact record for a profile. Missing records
// surface kvstore.ErrNotFound; the caller discriminates pending, complete and
// failed on the record's Status.
func (p *Pipeline) GetResult(ctx context.Context, profileID string) (*models.ArtifactRecord, error) {
	raw, err := p.store.Get(ctx, models.ArtifactKey(profileID))
	if err != nil {
		return nil, err
	}
	var rec models.ArtifactRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", profileID, err)
	}
	return &rec, nil
}

func (p *Pipeline) writeRecord(ctx context.Context, rec *models.ArtifactRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := p.store.Set(ctx, models.ArtifactKey(rec.OwnerProfileID), raw); err != nil {
		p.log.Error("artifact write failed", "profile", rec.OwnerProfileID, "status", rec.Status, "err", err)
		return err
	}
	return nil
}

// retainImage keeps a copy of the upload on disk and returns its path, or ""
// when retention failed. Failure to retain never fails the upload.
func (p *Pipeline) retainImage(profileID string, image []byte) string {
	dir := filepath.Join(p.BaseDir, profileID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		p.log.Warn("mkdir for upload failed", "dir", dir, "err", err)
		return ""
	}
	path := filepath.Join(dir, "image")
	if err := os.WriteFile(path, image, 0644); err != nil {
		p.log.Warn("retaining upload failed", "path", path, "err", err)
		return ""
	}
	return path
}
