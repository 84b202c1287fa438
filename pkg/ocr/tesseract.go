package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs a local Tesseract install via gosseract. Images go through a
// light preprocessing pass first; scans and phone photos OCR much better
// after grayscale and upscaling.
type Tesseract struct {
	// Language passed to Tesseract, defaults to "eng".
	Language string
	// Binarize applies a global threshold after grayscale. Helps
	// high-contrast documents, hurts photos; off by default.
	Binarize bool
}

func NewTesseract() *Tesseract {
	return &Tesseract{Language: "eng"}
}

func (t *Tesseract) ExtractText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngine, err)
	}

	img, err := imaging.Decode(bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("%w: decode image: %v", ErrEngine, err)
	}
	prepped := t.preprocess(img)

	// gosseract takes a file path; hand it the preprocessed frame via a
	// temp file.
	tmpFile, err := os.CreateTemp("", "ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("%w: temp file: %v", ErrEngine, err)
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	defer os.Remove(tmp)
	if err := imaging.Save(prepped, tmp); err != nil {
		return "", fmt.Errorf("%w: save preprocessed image: %v", ErrEngine, err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	lang := t.Language
	if lang == "" {
		lang = "eng"
	}
	_ = client.SetLanguage(lang)
	if err := client.SetImage(tmp); err != nil {
		return "", fmt.Errorf("%w: set image: %v", ErrEngine, err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("%w: tesseract: %v", ErrEngine, err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return normalizeText(text), nil
}
