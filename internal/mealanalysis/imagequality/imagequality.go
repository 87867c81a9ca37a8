// Package imagequality validates an encoded meal photo before it is sent to
// any provider.
package imagequality

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type Quality string

const (
	QualityGood    Quality = "good"
	QualityLow     Quality = "low"
	QualityInvalid Quality = "invalid"
)

const DefaultMaxBytes = 8 << 20

type Limits struct {
	MaxBytes int
	// images whose shorter side is below MinDimension are "low"
	MinDimension int
}

func DefaultLimits() Limits {
	return Limits{MaxBytes: DefaultMaxBytes, MinDimension: 256}
}

type Report struct {
	Quality  Quality
	Format   string
	MimeType string
	Bytes    int
	Width    int
	Height   int
	Reason   string
}

func (r Report) Valid() bool { return r.Quality != QualityInvalid }

// Assess classifies raw. It never fails; problems are reported as
// QualityInvalid with a Reason.
func Assess(raw []byte, limits Limits) Report {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultMaxBytes
	}
	rep := Report{Bytes: len(raw)}
	if len(raw) == 0 {
		rep.Quality, rep.Reason = QualityInvalid, "image is empty"
		return rep
	}
	if len(raw) > limits.MaxBytes {
		rep.Quality = QualityInvalid
		rep.Reason = fmt.Sprintf("image is %d bytes, limit is %d", len(raw), limits.MaxBytes)
		return rep
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		rep.Quality = QualityInvalid
		rep.Reason = fmt.Sprintf("unrecognized image data (sniffed %s): %v", http.DetectContentType(raw), err)
		return rep
	}
	rep.Format = format
	rep.MimeType = "image/" + format
	rep.Width, rep.Height = cfg.Width, cfg.Height
	if cfg.Width <= 0 || cfg.Height <= 0 {
		rep.Quality, rep.Reason = QualityInvalid, "image has no pixels"
		return rep
	}
	rep.Quality = QualityGood
	if min(cfg.Width, cfg.Height) < limits.MinDimension {
		rep.Quality = QualityLow
		rep.Reason = fmt.Sprintf("image is only %dx%d", cfg.Width, cfg.Height)
	}
	return rep
}

// DecodeBase64 accepts plain base64 (std or URL alphabet, padded or not) and
// data URLs.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[idx+1:]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, errors.New("empty image")
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("image is not valid base64")
}
