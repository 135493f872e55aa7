// Package imaging turns user uploads into display-ready rasters.
//
// It owns everything that happens before the vision pipeline sees a pixel:
// upload validation, decoding, bounding-box downscaling and encoding of
// display surfaces back to PNG. All operations work with standard Go
// image.Image types and use a coordinate system where (0,0) is the top-left
// corner.
//
// # Validation
//
// An upload is rejected with ErrUnsupportedType when either its declared or
// its sniffed content type is not an image type, and with ErrTooLarge when it
// exceeds the configured byte cap (5 MB by default). Bytes that look like an
// image but cannot be decoded fail with ErrDecode.
//
// # Supported Formats
//
// PNG, JPEG and GIF through the standard library, plus BMP, TIFF and WebP
// through golang.org/x/image.
//
// # Downscaling
//
// Images larger than the maximum bounding box (2000x2000 by default) are
// resized so that the constraining side equals the box exactly and the other
// side keeps the aspect ratio, rounded to the nearest pixel. Smaller images
// are cloned into NRGBA form unchanged.
//
// # Thread Safety
//
// Every function in this package is stateless and safe for concurrent use.
package imaging
