package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidArgument marks caller input that failed validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden indicates the caller may not access the entity.
	ErrForbidden = errors.New("forbidden")
)
