package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/mealsense-backend/internal/platform/ctxutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

// Vision runs Cloud Vision document text detection on a single image.
// Confidence is reported on a 0-100 scale.
type Vision interface {
	Recognize(ctx context.Context, img []byte, mimeType string) (text string, confidence float64, err error)
	Close() error
}

type visionService struct {
	log     *logger.Logger
	client  *vision.ImageAnnotatorClient
	timeout time.Duration
	hints   []string
}

func NewVision(log *logger.Logger, timeout time.Duration) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Vision")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts, creds := envClientOptions()
	c, err := vision.NewImageAnnotatorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client (%s credentials): %w", creds, err)
	}
	slog.Info("Cloud Vision initialized", "credentials", creds)

	return &visionService{
		log:     slog,
		client:  c,
		timeout: timeout,
		hints:   []string{"en"},
	}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *visionService) Recognize(ctx context.Context, img []byte, mimeType string) (string, float64, error) {
	if len(img) == 0 {
		return "", 0, nil
	}
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
		},
		ImageContext: &visionpb.ImageContext{LanguageHints: s.hints},
	}
	resp, err := s.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return "", 0, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", 0, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", 0, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	fta := r0.FullTextAnnotation
	if fta == nil || strings.TrimSpace(fta.Text) == "" {
		return "", 0, nil
	}

	var blocks []*visionpb.Block
	for _, pg := range fta.Pages {
		if pg != nil {
			blocks = append(blocks, pg.Blocks...)
		}
	}
	conf := avgBlockConfidence(blocks) * 100

	s.log.Debug("vision OCR done", "mime_type", mimeType, "chars", len(fta.Text), "confidence", conf)
	return cleanOCRText(fta.Text), conf, nil
}

func avgBlockConfidence(blocks []*visionpb.Block) float64 {
	var sum float64
	n := 0
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if b.Confidence > 0 {
			sum += float64(b.Confidence)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
