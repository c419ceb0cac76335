package remote

import "errors"

var (
	// ErrUnknownResource is returned for resources outside the allowlist.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrNotFound is returned when an update matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrMissingID is returned when an update or delete has no record id.
	ErrMissingID = errors.New("record id is empty")
	// ErrUnsupportedDriver is returned by Open for unknown database drivers.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	// ErrNoCachedTaxonomy is returned when the remote read fails and nothing is cached.
	ErrNoCachedTaxonomy = errors.New("no cached taxonomy")
)
