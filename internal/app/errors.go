package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted           = errors.New("service not started")
	ErrMissingDependency    = errors.New("missing dependency")
	ErrInvalidSubmission    = errors.New("invalid submission")
	ErrTaxonomyUnavailable  = errors.New("taxonomy unavailable")
	ErrDashboardUnavailable = errors.New("dashboard unavailable")
	ErrQueueUnavailable     = errors.New("offline queue unavailable")
	// ErrIncompleteSubmission means part of an evaluation was saved before the
	// offline queue failed. The result returned with it describes that part.
	ErrIncompleteSubmission = errors.New("evaluation saved incompletely")
)
