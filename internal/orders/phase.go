package orders

// Phase tracks how far one coordinator operation got.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseValidated
	PhaseApplied
	PhaseCommitted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseValidated:
		return "validated"
	case PhaseApplied:
		return "applied"
	case PhaseCommitted:
		return "committed"
	case PhaseAborted:
		return "aborted"
	}
	return "unknown"
}

type unitOfWork struct {
	op      string
	orderID int64
	tx      Tx
	phase   Phase
}

func (u *unitOfWork) advance(p Phase) { u.phase = p }
