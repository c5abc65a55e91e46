package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDestinationExists = errors.New("destination already exists")
	ErrUnavailable       = errors.New("unavailable")
)
