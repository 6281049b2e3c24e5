package recovery

// PathFunc rewrites state for an alternative approach. Returning nil means
// the alternative produced nothing usable.
type PathFunc func(state map[string]any, err error) map[string]any

// AlternativePath switches the agent to a different approach when the
// current logic path dead-ends. Alternatives are tried in order, one per
// attempt; StateModifiers are injected into the state on every retry.
type AlternativePath struct {
	Alternatives   []PathFunc
	StateModifiers map[string]any
}

// CanHandle always reports true: an alternative can be tried for any fault.
func (a *AlternativePath) CanHandle(err error) bool { return true }

func (a *AlternativePath) Apply(state map[string]any, err error, attempt int) map[string]any {
	for k, v := range a.StateModifiers {
		state[k] = v
	}

	if attempt < len(a.Alternatives) {
		if modified := a.Alternatives[attempt](state, err); modified != nil {
			return modified
		}
	}

	state["_alternative_path"] = map[string]any{
		"attempt":        attempt + 1,
		"original_error": err.Error(),
	}
	return state
}
