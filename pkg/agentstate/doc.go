// Package agentstate is the public entry point for versioned agent state
// management. It wraps the internal controller with validated
// construction, a named-engine registry, and a guarded-operation helper,
// and re-exports the types callers need so that most programs import
// only this package.
//
// Basic usage:
//
//	eng, err := agentstate.New(agentstate.Options{AgentName: "researcher"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	eng.Checkpoint(ctx, map[string]any{"step": 1}, nil, "initialized", "init")
package agentstate
