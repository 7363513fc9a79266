// Package models holds the error kinds shared by every stage of a run. It
// has no image or OpenCV dependencies.
package models

import "errors"

// Error kinds shared by every stage of a run. Stages wrap these with %w so
// the HTTP boundary can classify failures with errors.Is.
var (
	// ErrMalformedInput covers undecodable images and missing or unparsable
	// coordinates. Fatal for the run.
	ErrMalformedInput = errors.New("malformed input")

	// ErrGeometryDegenerate covers non-finite coordinates and corner pairs
	// with no angular extent.
	ErrGeometryDegenerate = errors.New("degenerate geometry")

	// ErrServiceFailure covers timeouts, transport errors and non-2xx
	// responses from the cutout, catalog or classifier services.
	ErrServiceFailure = errors.New("external service failure")

	// ErrMetadataInconsistency is returned when a serialized ROI record
	// breaks its own invariants.
	ErrMetadataInconsistency = errors.New("metadata inconsistency")
)

// IsClientError reports whether err should be surfaced as a client error.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrGeometryDegenerate)
}
