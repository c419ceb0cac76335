package scoring

import "errors"

var (
	// ErrScoreOutOfRange is returned when a score is negative, NaN or above the KPI max.
	ErrScoreOutOfRange = errors.New("score out of range")
	// ErrUnknownKPI is returned for entries whose KPI is not part of the taxonomy.
	ErrUnknownKPI = errors.New("unknown kpi")
	// ErrDuplicateEntry is returned when the same KPI is scored twice.
	ErrDuplicateEntry = errors.New("duplicate score entry")
)
