package match

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// DecodeImage turns raw bytes into pixels, trusting the declared content
// type first. Some servers mislabel uploads, so a failed decode falls back
// to the other supported codec before the report is given up on.
func DecodeImage(data []byte, contentType string) (image.Image, error) {
	isJpeg := strings.Contains(contentType, "jpeg") || strings.Contains(contentType, "jpg")
	isPng := strings.Contains(contentType, "png")
	if !isJpeg && !isPng {
		return nil, errors.Errorf("unsupported content type: %s", contentType)
	}

	primary, fallback := jpeg.Decode, png.Decode
	primaryName, fallbackName := "jpeg", "png"
	if isPng {
		primary, fallback = png.Decode, jpeg.Decode
		primaryName, fallbackName = "png", "jpeg"
	}

	img, err := primary(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	slog.Debug("primary decode failed, trying fallback",
		"declared", primaryName, "fallback", fallbackName, "error", err)

	img, fallbackErr := fallback(bytes.NewReader(data))
	if fallbackErr != nil {
		return nil, errors.Wrapf(fallbackErr, "failed to decode image as either %s or %s", primaryName, fallbackName)
	}
	return img, nil
}
