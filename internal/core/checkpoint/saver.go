// Package checkpoint provides checkpoint persistence interfaces
package checkpoint

import (
	"context"
	"time"
)

// Saver is the persistence sink contract consumed by the controller. The
// core calls it synchronously after every checkpoint; implementations live
// under internal/adapters/repository.
type Saver interface {
	// Save persists a checkpoint
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by ID
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// List returns checkpoints matching the filter, newest first
	List(ctx context.Context, filter Filter) ([]*Checkpoint, error)

	// Delete removes a checkpoint by ID
	Delete(ctx context.Context, id string) error
}

// Filter narrows checkpoint listings.
type Filter struct {
	Branch string     `json:"branch,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
}

// Validate ensures filter parameters are valid.
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidLimit
	}
	return nil
}
