package queue

import "errors"

// Sentinel errors returned by the queue.
var (
	ErrEmptyResource   = errors.New("action resource is empty")
	ErrInvalidKind     = errors.New("invalid action kind")
	ErrMissingRecordID = errors.New("action payload has no id")
	ErrPersist         = errors.New("persist offline queue")
)
