package recovery

// Composite delegates to the first applicable child strategy, in order.
type Composite struct {
	Strategies []Strategy
}

func (c *Composite) CanHandle(err error) bool {
	for _, s := range c.Strategies {
		if s.CanHandle(err) {
			return true
		}
	}
	return false
}

func (c *Composite) Apply(state map[string]any, err error, attempt int) map[string]any {
	for _, s := range c.Strategies {
		if !s.CanHandle(err) {
			continue
		}
		if result := s.Apply(state, err, attempt); result != nil {
			return result
		}
	}
	return nil
}
