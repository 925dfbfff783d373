package txns

import (
	"testing"

	"simple-kv/pkg/values"
)

func Test_UndoLog_LIFO(t *testing.T) {
	log := &UndoLog{}
	log.Push("a", values.Absent)
	log.Push("a", values.Of("1"))

	rec, ok := log.Pop()
	if !ok || rec.Prior.Val != "1" {
		t.Fatalf("Expect 1, got %v\n", rec)
	}
	rec, ok = log.Pop()
	if !ok || !rec.Prior.Absent {
		t.Fatalf("Expect absent, got %v\n", rec)
	}
	if _, ok = log.Pop(); ok {
		t.Errorf("Expect empty log")
	}
}
