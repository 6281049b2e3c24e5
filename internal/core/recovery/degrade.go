package recovery

// DegradeGracefully lowers the quality bar instead of failing outright:
// each retry applies the next degradation level to the state, from least
// to most degraded.
type DegradeGracefully struct {
	Levels []map[string]any

	// Matches overrides which faults trigger degradation. Nil accepts all.
	Matches func(error) bool
}

// NewDegradeGracefully returns a strategy with three generic levels:
// reduced output, minimal output, cached fallback.
func NewDegradeGracefully() *DegradeGracefully {
	return &DegradeGracefully{
		Levels: []map[string]any{
			{"_quality": "reduced", "_max_tokens": 500},
			{"_quality": "minimal", "_max_tokens": 100},
			{"_quality": "fallback", "_use_cache": true},
		},
	}
}

func (d *DegradeGracefully) CanHandle(err error) bool {
	if d.Matches != nil {
		return d.Matches(err)
	}
	return true
}

func (d *DegradeGracefully) Apply(state map[string]any, err error, attempt int) map[string]any {
	if !d.CanHandle(err) || len(d.Levels) == 0 {
		return nil
	}

	level := attempt
	if level >= len(d.Levels) {
		level = len(d.Levels) - 1
	}
	for k, v := range d.Levels[level] {
		state[k] = v
	}
	state["_degradation_metadata"] = map[string]any{
		"level":  level,
		"reason": err.Error(),
	}
	return state
}
