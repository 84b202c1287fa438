package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	in := "  INVOICE  #42 \n\n Total:   100\t USD \n"
	want := "INVOICE #42\nTotal: 100 USD"
	if got := normalizeText(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Snippet("0123456789abc", 10); got != "0123456789…" {
		t.Fatalf("got %q", got)
	}
}

func TestEngineFunc(t *testing.T) {
	e := EngineFunc(func(ctx context.Context, image []byte) (string, error) {
		return string(image), nil
	})
	got, err := e.ExtractText(context.Background(), []byte("hello"))
	if err != nil || got != "hello" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestTesseractRejectsEmptyImage(t *testing.T) {
	e := NewTesseract()
	_, err := e.ExtractText(context.Background(), nil)
	if !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}
