package visual

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// register decoders for the allow-listed formats
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrNoImage       = errors.New("no qualifying image attachment")
	ErrImageTooLarge = errors.New("image dimensions exceed limit")
)

const jpegQuality = 90

// Images declaring more pixels than this are rejected before any pixel data is decoded.
const MaxImagePixels = 40_000_000

// Decodes any of the supported image formats and re-encodes as JPEG. Animated GIFs are reduced to their first frame.
//
// Returns the detected source format along with the re-encoded bytes.
func NormalizeJPEG(data []byte) ([]byte, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, format, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, format, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), format, nil
}
