package txns

type Status int

const (
	Blocked Status = iota
	Success
	Found
	NoSuchKey
	Completed
	UserAbort
	DeadlockAbort
)

func (s Status) String() string {
	switch s {
	case Blocked:
		return "Blocked"
	case Success:
		return "Success"
	case Found:
		return "Found"
	case NoSuchKey:
		return "No such key"
	case Completed:
		return "Transaction Completed"
	case UserAbort:
		return "User Abort"
	case DeadlockAbort:
		return "Deadlock Abort"
	default:
		return "Unknown"
	}
}

// Result is what a request hands back to the caller. Value is set only when
// Status is Found.
type Result struct {
	Status Status
	Value  string
}

func (r Result) IsBlocked() bool {
	return r.Status == Blocked
}

func (r Result) String() string {
	if r.Status == Found {
		return r.Value
	}
	return r.Status.String()
}
