package recording

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	ErrSessionNotFound = errors.New("recording session not found")
	ErrEmptyBatch      = errors.New("batch cannot be empty")

	// ErrNothingToResume rejects resuming an abandoned session that never
	// stored a point; there is no trip to continue.
	ErrNothingToResume = errors.New("session has no location points to resume")
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
