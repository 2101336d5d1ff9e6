package paragraf

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("paragraf: invalid configuration")

	// ErrNotSynced is returned by sync-dependent admin operations
	// before any dataset has been ingested.
	ErrNotSynced = errors.New("paragraf: no dataset synced yet")

	// ErrBackendUnavailable is returned when an operation needs the
	// relational backend but only the embedded one is configured.
	ErrBackendUnavailable = errors.New("paragraf: relational backend not configured")
)
