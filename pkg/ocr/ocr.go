// Package ocr abstracts the optical-character-recognition engine behind a
// single text-extraction call so the pipeline does not care whether the
// engine is a local Tesseract install or the Cloud Vision API.
package ocr

import "context"

// Engine converts image bytes into extracted text.
type Engine interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// EngineFunc adapts a plain function to the Engine interface. Handy for tests
// and for wrapping one-off engines.
type EngineFunc func(ctx context.Context, image []byte) (string, error)

func (f EngineFunc) ExtractText(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}
