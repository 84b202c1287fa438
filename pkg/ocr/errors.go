package ocr

import "errors"

// ErrEmptyImage is returned when the input contains no bytes at all.
var ErrEmptyImage = errors.New("ocr: empty image")

// ErrEngine is wrapped by every engine invocation failure (bad image,
// engine crash, vendor API error, timeout).
var ErrEngine = errors.New("ocr: engine failure")
