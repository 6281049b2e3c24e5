package branch

import "errors"

var (
	ErrBranchNotFound = errors.New("branch not found")
	ErrEmptyBranch    = errors.New("branch has no checkpoints")
)
