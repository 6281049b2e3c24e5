// Package checkpoint defines domain-specific errors
package checkpoint

import "errors"

var (
	// Validation errors
	ErrInvalidCheckpointID = errors.New("invalid checkpoint ID")
	ErrInvalidBranchName   = errors.New("invalid branch name")
	ErrNilState            = errors.New("checkpoint state cannot be nil")

	// Filter validation errors
	ErrInvalidLimit = errors.New("limit cannot be negative")

	// Lookup errors
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckpointEvicted  = errors.New("checkpoint evicted from store")

	// Persistence errors
	ErrSaveFailed   = errors.New("failed to save checkpoint")
	ErrLoadFailed   = errors.New("failed to load checkpoint")
	ErrDeleteFailed = errors.New("failed to delete checkpoint")
)
