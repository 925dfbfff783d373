package txns

import "simple-kv/pkg/values"

type UndoRecord struct {
	Key   string
	Prior values.Value
}

// UndoLog is a stack of prior values, replayed most recent first.
type UndoLog struct {
	records []UndoRecord
}

func (l *UndoLog) Push(key string, prior values.Value) {
	l.records = append(l.records, UndoRecord{Key: key, Prior: prior})
}

func (l *UndoLog) Pop() (UndoRecord, bool) {
	n := len(l.records)
	if n == 0 {
		return UndoRecord{}, false
	}
	rec := l.records[n-1]
	l.records = l.records[:n-1]
	return rec, true
}

func (l *UndoLog) Len() int {
	return len(l.records)
}
