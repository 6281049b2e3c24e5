package agentstate

import "context"

// GuardConfig tunes a wrapped operation.
type GuardConfig struct {
	// Description labels checkpoints and logic nodes for this operation.
	Description string
	// MaxRetries bounds attempts before the fallback runs. Zero selects
	// the default.
	MaxRetries int
	// Fallback runs on an isolated branch after retries are exhausted.
	Fallback Operation
}

// Wrap turns an operation into one that runs under the engine's
// checkpoint guard: state is checkpointed before each attempt, failures
// roll back, recovery strategies are consulted between attempts, and the
// fallback runs on its own branch.
func Wrap(eng *Engine, op Operation, cfg GuardConfig) Operation {
	return func(ctx context.Context, st map[string]any) (map[string]any, error) {
		result, _, err := eng.SafeExecute(ctx, op, st, cfg.Description, cfg.MaxRetries, cfg.Fallback)
		return result, err
	}
}
