package ocr

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
)

// Vision extracts text with the GCP Cloud Vision API. Credentials come from
// the ambient application-default-credential chain; nothing is embedded here.
type Vision struct {
	client *vision.ImageAnnotatorClient

	// CallTimeout bounds a single annotate call.
	CallTimeout time.Duration
}

func NewVision(ctx context.Context) (*Vision, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Vision{client: client, CallTimeout: 60 * time.Second}, nil
}

func (v *Vision) Close() error {
	return v.client.Close()
}

func (v *Vision) ExtractText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if v.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.CallTimeout)
		defer cancel()
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{
				Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
			}},
		}},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: vision annotate: %v", ErrEngine, err)
	}
	if len(resp.GetResponses()) == 0 {
		return "", fmt.Errorf("%w: vision returned no responses", ErrEngine)
	}
	r := resp.GetResponses()[0]
	if apiErr := r.GetError(); apiErr != nil {
		return "", fmt.Errorf("%w: vision: %s", ErrEngine, apiErr.GetMessage())
	}
	return normalizeText(r.GetFullTextAnnotation().GetText()), nil
}
