package research

// Decision is the outcome of the reflection step: Advance or Retry.
type Decision interface {
	isDecision()
}

// Advance moves on to formatting the section.
type Advance struct{}

// Retry runs another query round carrying the critique forward.
type Retry struct {
	Feedback string
}

func (Advance) isDecision() {}
func (Retry) isDecision()   {}

// Gate decides the reflection transition from the verdict and the number of
// rounds already spent.
type Gate func(fb Feedback, count, max int) Decision

// BoundedGate advances on affirmative feedback or once max extra rounds were
// spent. The loop re-enters query generation at most max times.
func BoundedGate(fb Feedback, count, max int) Decision {
	if fb.Affirmative() || count >= max {
		return Advance{}
	}
	return Retry{Feedback: fb.String()}
}

// LegacyGate advances on affirmative feedback or while count is below max.
// Negative feedback therefore only loops once the counter has reached max,
// which is how the pipeline historically behaved.
func LegacyGate(fb Feedback, count, max int) Decision {
	if fb.Affirmative() || count < max {
		return Advance{}
	}
	return Retry{Feedback: fb.String()}
}

func gateFor(cfg RunConfig) Gate {
	if cfg.LegacyReflectionGate {
		return LegacyGate
	}
	return BoundedGate
}
