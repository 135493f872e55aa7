// Package vision adapts OpenCV (through gocv) to the colony counting pipeline.
//
// OpenCV objects live outside the Go heap and must be closed explicitly. This
// package owns that lifecycle: every Mat or vector allocated during a run is
// registered with an Arena and released in reverse order when the run ends,
// whether it succeeded, found nothing, returned an error or panicked.
//
// # Pipeline
//
// Engine.Analyze runs a fixed sequence on a registered raster:
//
//  1. Clone the source raster into a working Mat
//  2. Convert BGR to single-channel grayscale
//  3. Gaussian blur, 5x5 kernel, sigma derived from the kernel
//  4. Inverse binary threshold at Params.Threshold (output 0/255)
//  5. External contours only, simple chain approximation
//
// Each contour is measured with ContourArea and a closed ArcLength, filtered
// by the detection package and drawn onto a second clone of the source.
//
// # Readiness
//
// Engine.Start warms OpenCV up in the background. Until that finishes, Analyze
// fails with ErrPipelineNotReady. Binaries built without the "gocv" build tag
// get a stub engine that never becomes ready, so the rest of the service still
// builds and runs on machines without OpenCV.
//
// # Handle Accounting
//
// LiveHandles reports how many tracked OpenCV objects are currently alive in
// the process. A run leaves this count exactly as it found it.
package vision
