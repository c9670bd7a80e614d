// Package gait derives stride length, cadence, left/right symmetry and a
// bradykinesia (movement slowness) score from a landmark sequence.
//
// Every metric degrades gracefully: sequences that are too short return a
// neutral 0.5 (symmetry, bradykinesia) or report the metric as absent
// (stride length, cadence). Frames missing a required landmark are skipped.
//
// No I/O or SQL belongs in this package.
package gait
