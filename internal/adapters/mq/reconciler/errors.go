package reconciler

import "errors"

var (
	// ErrMissingRecordID is returned for update or delete actions without a payload id.
	ErrMissingRecordID = errors.New("action has no record id")
	// ErrUnknownKind is returned for actions with an unsupported kind.
	ErrUnknownKind = errors.New("unknown action kind")
)
