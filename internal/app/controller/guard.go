package controller

import (
	"context"
	"fmt"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/branch"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/logic"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
	"github.com/ekessh/agent-checkpoint-protocol/internal/infrastructure/metrics"
)

// Operation is a guarded unit of agent work. It receives an owned deep
// copy of the state and returns the resulting state.
type Operation func(ctx context.Context, st map[string]any) (map[string]any, error)

// OperationExhaustedError reports a guarded execution that failed through
// every retry and the fallback. It carries the original fault and the
// checkpoint id the branch was rolled back to.
type OperationExhaustedError struct {
	Description  string
	Attempts     int
	LastErr      error
	CheckpointID string
}

func (e *OperationExhaustedError) Error() string {
	return fmt.Sprintf("operation %q failed after %d attempts, rolled back to checkpoint %s: %v",
		e.Description, e.Attempts, e.CheckpointID, e.LastErr)
}

func (e *OperationExhaustedError) Unwrap() error { return e.LastErr }

// SafeExecute runs op with pre/post checkpointing, rollback on fault,
// staged recovery-strategy consultation and branch-isolated fallback.
//
// A pre-execution checkpoint anchors rollback for the whole call. Each
// attempt runs op against a deep copy of state. On fault the branch is
// rolled back to the anchor (the failure checkpoint stays in the store for
// audit) and the recovery strategies are consulted in order; the first
// non-nil replacement becomes the state for the next attempt. When every
// attempt is spent, fallback (if supplied) runs on a fresh branch forked
// from the anchor. Exhaustion always surfaces as *OperationExhaustedError.
func (c *Controller) SafeExecute(ctx context.Context, op Operation, st map[string]any, description string, maxRetries int, fallback Operation) (map[string]any, *checkpoint.Checkpoint, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	pre := c.Checkpoint(ctx, st,
		map[string]any{"operation": description, "status": "attempting"},
		"Pre-execution: "+description,
		description,
	)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := op(ctx, state.Clone(st))
		if err == nil {
			successCP := c.Checkpoint(ctx, result,
				map[string]any{"operation": description, "status": "success", "attempt": attempt + 1},
				"Completed: "+description,
				description+":success",
			)
			c.tree.SetOutcome(successCP.ID, logic.OutcomeSuccess)
			return result, successCP, nil
		}

		lastErr = err
		c.mu.Lock()
		c.counters.ErrorsCaught++
		c.mu.Unlock()
		metrics.IncErrorsCaught()
		c.logger.Warn("guarded attempt failed", "operation", description, "attempt", attempt+1, "max", maxRetries, "error", err)

		failedState := state.Clone(st)
		failedState["_error"] = err.Error()
		failedState["_attempt"] = attempt + 1
		c.Checkpoint(ctx, failedState,
			map[string]any{"operation": description, "status": "failed", "error": err.Error(), "attempt": attempt + 1},
			fmt.Sprintf("Failed (attempt %d): %s", attempt+1, description),
			fmt.Sprintf("%s:fail:%d", description, attempt+1),
		)

		if _, rbErr := c.RollbackTo(pre.ID); rbErr != nil {
			c.logger.Warn("rollback to pre-execution checkpoint failed", "id", pre.ID, "error", rbErr)
		}

		for _, strategy := range c.strategies {
			if modified := strategy.Apply(st, err, attempt); len(modified) > 0 {
				st = modified
				break
			}
		}
	}

	if fallback != nil {
		c.logger.Info("using fallback", "operation", description)
		c.Branch("fallback-"+shortID(pre.ID), pre.ID)

		result, err := fallback(ctx, state.Clone(st))
		if err == nil {
			fallbackCP := c.Checkpoint(ctx, result,
				map[string]any{"operation": description, "status": "fallback_success", "original_error": lastErr.Error()},
				"Fallback succeeded: "+description,
				description+":fallback",
			)
			c.mu.Lock()
			c.counters.TotalRecoveries++
			c.mu.Unlock()
			metrics.IncRecoveries()
			return result, fallbackCP, nil
		}

		c.logger.Error("fallback failed", "operation", description, "error", err)
		if _, swErr := c.SwitchBranch(branch.Main); swErr != nil {
			c.logger.Warn("switch to main after fallback failure", "error", swErr)
		}
	}

	return nil, nil, &OperationExhaustedError{
		Description:  description,
		Attempts:     maxRetries,
		LastErr:      lastErr,
		CheckpointID: pre.ID,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
