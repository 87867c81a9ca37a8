package imagequality

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAssess(t *testing.T) {
	limits := Limits{MaxBytes: 1 << 20, MinDimension: 64}
	tests := []struct {
		name string
		raw  []byte
		want Quality
	}{
		{"empty", nil, QualityInvalid},
		{"garbage", []byte(strings.Repeat("z", 2048)), QualityInvalid},
		{"too large", make([]byte, limits.MaxBytes+1), QualityInvalid},
		{"small", pngBytes(t, 16, 16), QualityLow},
		{"good", pngBytes(t, 128, 96), QualityGood},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Assess(tt.raw, limits)
			if rep.Quality != tt.want {
				t.Fatalf("quality: want=%s got=%s (%s)", tt.want, rep.Quality, rep.Reason)
			}
			if rep.Quality == QualityInvalid && rep.Reason == "" {
				t.Fatalf("invalid report needs a reason")
			}
		})
	}
}

func TestAssessReportsFormat(t *testing.T) {
	rep := Assess(pngBytes(t, 300, 300), DefaultLimits())
	if rep.Format != "png" || rep.MimeType != "image/png" || rep.Width != 300 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0x00, 0x10}
	std := base64.StdEncoding.EncodeToString(raw)
	for _, in := range []string{
		std,
		"data:image/jpeg;base64," + std,
		base64.RawURLEncoding.EncodeToString(raw),
		std[:4] + "\n" + std[4:],
	} {
		got, err := DecodeBase64(in)
		if err != nil || !bytes.Equal(got, raw) {
			t.Fatalf("DecodeBase64(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := DecodeBase64("!!!not base64!!!"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := DecodeBase64(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
