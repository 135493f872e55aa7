package imaging

import "errors"

// Sentinel errors for upload validation. They are matched with errors.Is;
// the returned errors wrap them with the offending value.
var (
	// ErrUnsupportedType is returned when the upload is not an image.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrTooLarge is returned when the upload exceeds the byte cap.
	ErrTooLarge = errors.New("file too large")

	// ErrDecode is returned when the bytes cannot be decoded as an image.
	ErrDecode = errors.New("image could not be decoded")
)
