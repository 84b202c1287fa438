package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ocrbox/models"
	"ocrbox/pkg/kvstore"
	"ocrbox/pkg/logger"
	"ocrbox/pkg/ocr"
	"ocrbox/pkg/profile"
)

func newTestPipeline(t *testing.T, engine ocr.Engine) (*Pipeline, *profile.Manager, *kvstore.Memory) {
	t.Helper()
	store := kvstore.NewMemory()
	log := logger.NewNop()
	profiles := profile.NewManager(store, log)
	p := NewPipeline(store, profiles, engine, log)
	p.BaseDir = t.TempDir()
	return p, profiles, store
}

func mustCreateProfile(t *testing.T, profiles *profile.Manager) string {
	t.Helper()
	id, err := profiles.Create(context.Background(), map[string]any{"name": "Ana", "age": 30, "city": "Lima"})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return id
}

func staticEngine(text string) ocr.Engine {
	return ocr.EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		return text, nil
	})
}

func failingEngine(msg string) ocr.Engine {
	return ocr.EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		return "", fmt.Errorf("%w: %s", ocr.ErrEngine, msg)
	})
}

func TestUploadHappyPath(t *testing.T) {
	p, profiles, _ := newTestPipeline(t, staticEngine("INVOICE #42"))
	id := mustCreateProfile(t, profiles)
	ctx := context.Background()

	ref, err := p.Upload(ctx, id, []byte("image-bytes"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if ref != id {
		t.Fatalf("ref = %q, want profile id %q", ref, id)
	}

	rec, err := p.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if rec.Status != models.StatusComplete {
		t.Fatalf("status = %s, want complete", rec.Status)
	}
	if rec.Text != "INVOICE #42" {
		t.Fatalf("text = %q", rec.Text)
	}
	if rec.OwnerProfileID != id {
		t.Fatalf("owner = %q, want %q", rec.OwnerProfileID, id)
	}
	if rec.ImageBytes != len("image-bytes") {
		t.Fatalf("image bytes = %d", rec.ImageBytes)
	}
}

func TestUploadUnknownProfileIsForbidden(t *testing.T) {
	invoked := false
	engine := ocr.EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		invoked = true
		return "text", nil
	})
	p, _, store := newTestPipeline(t, engine)

	_, err := p.Upload(context.Background(), "ghost-id", []byte("image"))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if invoked {
		t.Fatal("ocr engine was invoked before the gate check passed")
	}
	if store.Len() != 0 {
		t.Fatal("forbidden upload wrote a record")
	}
	if _, err := p.GetResult(context.Background(), "ghost-id"); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("expected no artifact, got %v", err)
	}
}

func TestUploadEmptyImageRejected(t *testing.T) {
	p, profiles, _ := newTestPipeline(t, staticEngine("text"))
	id := mustCreateProfile(t, profiles)

	_, err := p.Upload(context.Background(), id, nil)
	if !errors.Is(err, ocr.ErrEmptyImage) {
		t.Fatalf("expected empty-image error, got %v", err)
	}
	if _, err := p.GetResult(context.Background(), id); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("empty upload should write nothing, got %v", err)
	}
}

func TestUploadGateStoreFailureIsNotForbidden(t *testing.T) {
	p, profiles, store := newTestPipeline(t, staticEngine("text"))
	id := mustCreateProfile(t, profiles)

	store.FailNext = fmt.Errorf("connection refused")
	_, err := p.Upload(context.Background(), id, []byte("image"))
	if !errors.Is(err, kvstore.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("store outage must not present as a gate failure")
	}
}

func TestUploadOCRFailureLandsFailed(t *testing.T) {
	p, profiles, _ := newTestPipeline(t, failingEngine("unreadable image"))
	id := mustCreateProfile(t, profiles)
	ctx := context.Background()

	ref, err := p.Upload(ctx, id, []byte("image"))
	if !errors.Is(err, ErrOCRFailed) {
		t.Fatalf("expected ocr failure, got %v", err)
	}
	if ref != id {
		t.Fatalf("ref should still be returned on ocr failure, got %q", ref)
	}

	rec, err := p.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("failed artifact must remain observable: %v", err)
	}
	if rec.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.Reason == "" {
		t.Fatal("failed record carries no reason")
	}
	if rec.Text != "" {
		t.Fatalf("failed record carries text %q", rec.Text)
	}
}

func TestUploadOCRTimeoutLandsFailed(t *testing.T) {
	engine := ocr.EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %v", ocr.ErrEngine, ctx.Err())
	})
	p, profiles, _ := newTestPipeline(t, engine)
	p.OCRTimeout = 20 * time.Millisecond
	id := mustCreateProfile(t, profiles)

	_, err := p.Upload(context.Background(), id, []byte("image"))
	if !errors.Is(err, ErrOCRFailed) {
		t.Fatalf("expected ocr failure after timeout, got %v", err)
	}
	rec, err := p.GetResult(context.Background(), id)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if rec.Status != models.StatusFailed {
		t.Fatalf("timed-out upload left status %s, want failed (never stuck pending)", rec.Status)
	}
}

func TestReuploadOverwrites(t *testing.T) {
	var mu sync.Mutex
	text := "FIRST"
	engine := ocr.EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return text, nil
	})
	p, profiles, _ := newTestPipeline(t, engine)
	id := mustCreateProfile(t, profiles)
	ctx := context.Background()

	if _, err := p.Upload(ctx, id, []byte("one")); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	mu.Lock()
	text = "SECOND"
	mu.Unlock()
	if _, err := p.Upload(ctx, id, []byte("two")); err != nil {
		t.Fatalf("second upload: %v", err)
	}

	rec, err := p.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if rec.Text != "SECOND" {
		t.Fatalf("text = %q, want the second upload's text", rec.Text)
	}
	if rec.ImageBytes != len("two") {
		t.Fatalf("image bytes = %d, want the second upload's size", rec.ImageBytes)
	}
}

// Concurrent uploads race on the single artifact slot; the final record must
// be one of the two complete outcomes, not a blend.
func TestConcurrentUploadsSettleOnOneOutcome(t *testing.T) {
	engine := ocr.EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		return "text:" + string(image), nil
	})
	p, profiles, _ := newTestPipeline(t, engine)
	id := mustCreateProfile(t, profiles)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, payload := range []string{"a", "b"} {
		wg.Add(1)
		go func(data string) {
			defer wg.Done()
			if _, err := p.Upload(ctx, id, []byte(data)); err != nil {
				t.Errorf("upload %q: %v", data, err)
			}
		}(payload)
	}
	wg.Wait()

	rec, err := p.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if rec.Status != models.StatusComplete {
		t.Fatalf("status = %s, want complete", rec.Status)
	}
	if rec.Text != "text:a" && rec.Text != "text:b" {
		t.Fatalf("text = %q, want one of the two uploads' outcomes", rec.Text)
	}
}

// ctxStore refuses operations once the supplied context is dead, the way the
// redis and postgres backends do.
type ctxStore struct {
	inner *kvstore.Memory
}

func (s *ctxStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(kvstore.ErrStore, err)
	}
	return s.inner.Get(ctx, key)
}

func (s *ctxStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(kvstore.ErrStore, err)
	}
	return s.inner.Set(ctx, key, value)
}

// A client disconnect during the OCR call must not strand the record at
// pending: the terminal write settles on its own context.
func TestUploadCanceledRequestStillSettlesFailed(t *testing.T) {
	reqCtx, cancelReq := context.WithCancel(context.Background())
	engine := ocr.EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		cancelReq()
		return "", fmt.Errorf("%w: %v", ocr.ErrEngine, context.Canceled)
	})
	store := kvstore.NewMemory()
	cs := &ctxStore{inner: store}
	log := logger.NewNop()
	profiles := profile.NewManager(cs, log)
	p := NewPipeline(cs, profiles, engine, log)
	p.BaseDir = t.TempDir()
	id := mustCreateProfile(t, profiles)

	_, err := p.Upload(reqCtx, id, []byte("image"))
	if !errors.Is(err, ErrOCRFailed) {
		t.Fatalf("expected ocr failure, got %v", err)
	}

	rec, err := p.GetResult(context.Background(), id)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if rec.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed (record must not stay pending after cancellation)", rec.Status)
	}
}

func TestUploadCanceledRequestStillSettlesComplete(t *testing.T) {
	reqCtx, cancelReq := context.WithCancel(context.Background())
	engine := ocr.EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		cancelReq()
		return "INVOICE #42", nil
	})
	store := kvstore.NewMemory()
	cs := &ctxStore{inner: store}
	log := logger.NewNop()
	profiles := profile.NewManager(cs, log)
	p := NewPipeline(cs, profiles, engine, log)
	p.BaseDir = t.TempDir()
	id := mustCreateProfile(t, profiles)

	if _, err := p.Upload(reqCtx, id, []byte("image")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	rec, err := p.GetResult(context.Background(), id)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if rec.Status != models.StatusComplete || rec.Text != "INVOICE #42" {
		t.Fatalf("record = %+v, want complete with text", rec)
	}
}

func TestGetResultPendingRecord(t *testing.T) {
	p, _, store := newTestPipeline(t, staticEngine("text"))
	seeded := models.ArtifactRecord{
		OwnerProfileID: "p1",
		Status:         models.StatusPending,
		ImageBytes:     5,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	raw, _ := json.Marshal(seeded)
	if err := store.Set(context.Background(), models.ArtifactKey("p1"), raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := p.GetResult(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if rec.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", rec.Status)
	}
	if rec.Text != "" {
		t.Fatalf("pending record carries text %q", rec.Text)
	}
}

func TestGetResultUnknownProfile(t *testing.T) {
	p, _, _ := newTestPipeline(t, staticEngine("text"))
	_, err := p.GetResult(context.Background(), "nobody")
	if !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
