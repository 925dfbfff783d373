package locks

type task struct {
	req  Request
	next *task
}

// WaitQueue is a FIFO of lock requests. Order is grant priority.
type WaitQueue struct {
	head *task
	tail *task
	size int
}

func (q *WaitQueue) Len() int {
	return q.size
}

func (q *WaitQueue) Empty() bool {
	return q.size == 0
}

func (q *WaitQueue) Push(req Request) {
	t := &task{req: req}
	if q.tail == nil {
		q.head = t
		q.tail = t
	} else {
		q.tail.next = t
		q.tail = t
	}
	q.size++
}

// Pop removes the front request. ok is false on an empty queue.
func (q *WaitQueue) Pop() (req Request, ok bool) {
	if q.head == nil {
		return Request{}, false
	}

	t := q.head
	q.head = t.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	return t.req, true
}

func (q *WaitQueue) Peek() (req Request, ok bool) {
	if q.head == nil {
		return Request{}, false
	}
	return q.head.req, true
}

func (q *WaitQueue) Contains(req Request) bool {
	for t := q.head; t != nil; t = t.next {
		if t.req == req {
			return true
		}
	}
	return false
}

// Remove drops every occurrence of req and reports how many were removed.
func (q *WaitQueue) Remove(req Request) int {
	removed := 0
	var prev *task
	for t := q.head; t != nil; t = t.next {
		if t.req != req {
			prev = t
			continue
		}

		if prev == nil {
			q.head = t.next
		} else {
			prev.next = t.next
		}
		if t == q.tail {
			q.tail = prev
		}
		q.size--
		removed++
	}
	return removed
}

// Items returns the queued requests front to back.
func (q *WaitQueue) Items() []Request {
	res := make([]Request, 0, q.size)
	for t := q.head; t != nil; t = t.next {
		res = append(res, t.req)
	}
	return res
}
