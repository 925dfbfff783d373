package values

// Value is what a store read returns. Absent values are distinguishable from
// every stored string, including the empty one.
type Value struct {
	Val    string
	Absent bool
}

// Absent is the result of reading a key that does not exist. The undo log
// reuses it to mean "there was no prior value".
var Absent = Value{Absent: true}

func Of(val string) Value {
	return Value{Val: val}
}

func (v Value) String() string {
	if v.Absent {
		return "<absent>"
	}
	return v.Val
}
