package orchestrator

// Phase is the position of a rank within the tick cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSynchronizing
	PhaseDeciding
	PhaseResolving
	PhaseTransacting
	PhaseUpdating
	PhaseTerminal
)

var phaseNames = [...]string{
	PhaseIdle:          "idle",
	PhaseSynchronizing: "synchronizing",
	PhaseDeciding:      "deciding",
	PhaseResolving:     "resolving",
	PhaseTransacting:   "transacting",
	PhaseUpdating:      "updating",
	PhaseTerminal:      "terminal",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// next returns the phase that legally follows p within a tick.
func (p Phase) next() Phase {
	switch p {
	case PhaseIdle:
		return PhaseSynchronizing
	case PhaseSynchronizing:
		return PhaseDeciding
	case PhaseDeciding:
		return PhaseResolving
	case PhaseResolving:
		return PhaseTransacting
	case PhaseTransacting:
		return PhaseUpdating
	case PhaseUpdating:
		return PhaseIdle
	default:
		return PhaseTerminal
	}
}
