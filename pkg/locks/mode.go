package locks

type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "S"
	case Exclusive:
		return "X"
	default:
		return "?"
	}
}

// Request is a pending lock request sitting in a wait queue.
type Request struct {
	XID  uint64
	Mode Mode
}
