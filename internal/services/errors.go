// Package services implements the capture-and-replay core: the slug
// registry, the response policy store, the capture ledger, the ingestion
// engine and the usage aggregator. This file centralizes the service-level
// error values so callers can map them onto transport results with
// errors.Is / errors.As.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrInvalidSlug is returned when a slug does not normalize to a valid
	// path token.
	ErrInvalidSlug = errors.New("invalid slug")

	// ErrInvalidStatusCode is returned when a response policy carries a
	// status outside [100, 599].
	ErrInvalidStatusCode = errors.New("status code must be between 100 and 599")

	// ErrInvalidDate is returned for a date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
)

// Lookup and access errors.
var (
	// ErrSlugNotFound means the slug was never activated by a viewer load.
	ErrSlugNotFound = errors.New("slug not found")

	// ErrSummaryNotFound means no summary exists for the requested date.
	ErrSummaryNotFound = errors.New("summary not found")

	// ErrUnauthorized means the caller presented neither an identity nor a
	// creation marker.
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden means the caller is authenticated but does not own the
	// slug.
	ErrForbidden = errors.New("not the owner of this slug")
)

// StorageError wraps a backend failure with the operation and slug it
// happened on. Handlers log it and answer with a generic 500.
type StorageError struct {
	Op   string
	Slug string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Slug == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s [%s]: %v", e.Op, e.Slug, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err, passing nil through.
func storageErr(op, slug string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Slug: slug, Err: err}
}
