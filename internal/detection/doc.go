// Package detection decides which contours count as colonies.
//
// Contours arrive from the vision pipeline with their area and perimeter
// already measured. This package holds the pure, library-free part of the
// analysis: parameter validation, the colony filter, contour moments for
// label placement, and summary statistics over the accepted colonies.
//
// # Colony Filter
//
// A contour is a colony when both hold:
//
//	area > MinArea                       (strict)
//	4*pi*area / perimeter^2 > 0.3        (strict)
//
// Circularity is 1.0 for a perfect circle and falls towards 0 for elongated
// or ragged shapes. A contour with zero perimeter has circularity 0 and is
// always rejected. Filtering keeps the enumeration order of its input, so
// colony numbers are deterministic for a given image and parameter set.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Bounding boxes use inclusive top-left and exclusive bottom-right
//
// # Moments
//
// Moments are computed from the contour polygon using Green's theorem, the
// same definition OpenCV applies when moments are taken of a point set rather
// than a raster. The centroid is (floor(M10/M00), floor(M01/M00)) and is
// undefined when M00 is zero.
package detection
