package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Upload is a single user-selected file as received by the server.
type Upload struct {
	// Filename is the client-side name, used for logging only.
	Filename string

	// ContentType is the MIME type declared by the client. Empty or
	// "application/octet-stream" means the client did not know.
	ContentType string

	// Size is the declared size in bytes. It may exceed len(Data) when the
	// server stopped reading at the cap.
	Size int64

	// Data holds the file bytes.
	Data []byte
}

// Limits bounds what Load accepts and produces.
type Limits struct {
	// MaxBytes is the upload size cap.
	MaxBytes int64

	// MaxWidth and MaxHeight form the bounding box larger images are
	// downscaled into.
	MaxWidth  int
	MaxHeight int
}

// DefaultLimits returns the 5 MB / 2000x2000 limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:  5 * 1024 * 1024,
		MaxWidth:  2000,
		MaxHeight: 2000,
	}
}

// Loaded is a decoded, possibly rescaled upload ready for display and analysis.
type Loaded struct {
	// Image is the display raster, always *image.NRGBA with Min at (0,0).
	Image *image.NRGBA

	// Format is the decoder name reported by image.Decode ("png", "jpeg", ...).
	Format string

	// MimeType is the sniffed content type.
	MimeType string

	// OriginalWidth and OriginalHeight are the decoded dimensions.
	OriginalWidth  int
	OriginalHeight int

	// Width and Height are the display dimensions after downscaling.
	Width  int
	Height int

	// Rescaled reports whether the image was shrunk to fit the bounding box.
	Rescaled bool
}

// Validate checks an upload's type and size without decoding it.
//
// Checks run in this order:
//  1. Declared content type must be image/* (when declared)
//  2. Size must not exceed limits.MaxBytes
//  3. Sniffed content type must be image/*
//
// Returns the sniffed MIME type on success.
//
// # Errors
//
//   - ErrUnsupportedType for non-image declared or sniffed types
//   - ErrTooLarge when the upload exceeds the cap
func Validate(u Upload, limits Limits) (string, error) {
	declared := strings.ToLower(strings.TrimSpace(u.ContentType))
	if declared != "" && declared != "application/octet-stream" && !strings.HasPrefix(declared, "image/") {
		return "", fmt.Errorf("%w: declared %q", ErrUnsupportedType, u.ContentType)
	}

	size := u.Size
	if n := int64(len(u.Data)); n > size {
		size = n
	}
	if limits.MaxBytes > 0 && size > limits.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, limits.MaxBytes)
	}

	mt := mimetype.Detect(u.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: content is %s", ErrUnsupportedType, mt.String())
	}
	return mt.String(), nil
}

// Decode decodes image bytes with every registered decoder.
//
// Returns the image and the format name, or an error wrapping ErrDecode.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fmt.Errorf("%w: empty image %dx%d", ErrDecode, b.Dx(), b.Dy())
	}
	return img, format, nil
}

// ScaledSize computes the display size of a width x height image inside a
// maxW x maxH bounding box.
//
// Images that already fit are returned unchanged. Otherwise the side that
// constrains the fit is set exactly to its maximum and the other side is
// scaled by the same factor and rounded, never below 1 pixel.
func ScaledSize(width, height, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 || (width <= maxW && height <= maxH) {
		return width, height
	}

	sx := float64(maxW) / float64(width)
	sy := float64(maxH) / float64(height)

	if sx <= sy {
		h := int(math.Round(float64(height) * sx))
		return maxW, max(h, 1)
	}
	w := int(math.Round(float64(width) * sy))
	return max(w, 1), maxH
}

// Downscale fits img into the bounding box using Lanczos resampling.
//
// The result is always a fresh *image.NRGBA with bounds starting at (0,0),
// so callers may mutate it freely.
func Downscale(img image.Image, maxW, maxH int) (*image.NRGBA, bool) {
	b := img.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(img), false
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), true
}

// Load validates, decodes and downscales an upload.
//
// # Errors
//
// Errors wrap ErrUnsupportedType, ErrTooLarge or ErrDecode so callers can
// classify them with errors.Is.
func Load(u Upload, limits Limits) (*Loaded, error) {
	mt, err := Validate(u, limits)
	if err != nil {
		return nil, err
	}

	src, format, err := Decode(u.Data)
	if err != nil {
		return nil, err
	}

	sb := src.Bounds()
	display, rescaled := Downscale(src, limits.MaxWidth, limits.MaxHeight)
	db := display.Bounds()

	return &Loaded{
		Image:          display,
		Format:         format,
		MimeType:       mt,
		OriginalWidth:  sb.Dx(),
		OriginalHeight: sb.Dy(),
		Width:          db.Dx(),
		Height:         db.Dy(),
		Rescaled:       rescaled,
	}, nil
}
