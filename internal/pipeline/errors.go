package pipeline

import "galaxy-roi/internal/models"

// Error kinds a run can fail with. Test with errors.Is.
var (
	ErrMalformedInput        = models.ErrMalformedInput
	ErrGeometryDegenerate    = models.ErrGeometryDegenerate
	ErrServiceFailure        = models.ErrServiceFailure
	ErrMetadataInconsistency = models.ErrMetadataInconsistency
)
