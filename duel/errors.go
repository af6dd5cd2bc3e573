package duel

import (
	"errors"
	"net/http"
)

var (
	// ErrAlreadyExists is returned by Create when the duel id is taken.
	ErrAlreadyExists = errors.New("duel already exists")

	// ErrNotFound is returned when no matching duel or connection exists.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionFailed is returned when an ownership or concurrency
	// condition does not hold at commit time: caller is not a participant,
	// the guest slot is already occupied, or a competing write landed
	// first. The operation has no partial effect.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInvalid marks a malformed request rejected before touching the
	// store.
	ErrInvalid = errors.New("invalid request")
)

// HTTPStatus maps a service error to the status code relayed by the edge.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
