package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/mealsense-backend/internal/platform/ctxutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

// Document runs a Document AI OCR processor on raw image bytes. It satisfies
// the same contract as Vision.
type Document interface {
	Recognize(ctx context.Context, img []byte, mimeType string) (text string, confidence float64, err error)
	Close() error
}

type documentService struct {
	log       *logger.Logger
	client    *documentai.DocumentProcessorClient
	processor string
	timeout   time.Duration
}

func NewDocument(log *logger.Logger, cfg DocumentConfig) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Document")

	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us"
	}
	name := processorName(cfg.ProjectID, location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("documentai: project and processor id are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	credOpts, creds := envClientOptions()
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, credOpts...)
	c, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client (%s credentials): %w", creds, err)
	}

	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name, "credentials", creds)
	return &documentService{log: slog, client: c, processor: name, timeout: timeout}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *documentService) Recognize(ctx context.Context, img []byte, mimeType string) (string, float64, error) {
	if len(img) == 0 {
		return "", 0, nil
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: img, MimeType: mimeType},
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", 0, nil
	}
	doc := resp.Document
	text := cleanOCRText(doc.Text)
	if text == "" {
		return "", 0, nil
	}
	conf := avgParagraphConfidence(doc) * 100
	s.log.Debug("document OCR done", "mime_type", mimeType, "chars", len(text), "confidence", conf)
	return text, conf, nil
}

func avgParagraphConfidence(doc *documentaipb.Document) float64 {
	var sum float64
	n := 0
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil || para.Layout.Confidence <= 0 {
				continue
			}
			sum += float64(para.Layout.Confidence)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	version = strings.TrimSpace(version)

	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
