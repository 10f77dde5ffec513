package job

// retention remembers terminal job ids in completion order and reports the
// oldest once more than capacity are held.
type retention struct {
	capacity int
	items    map[string]*entry
	head     *entry // sentinel; head.next is the oldest
	tail     *entry // sentinel; tail.prev is the newest
}

type entry struct {
	id         string
	prev, next *entry
}

func newRetention(capacity int) *retention {
	head, tail := &entry{}, &entry{}
	head.next = tail
	tail.prev = head
	return &retention{
		capacity: capacity,
		items:    make(map[string]*entry),
		head:     head,
		tail:     tail,
	}
}

// add records id as the most recently completed job and returns the id that
// fell out of the window, if any.
func (r *retention) add(id string) (string, bool) {
	if _, ok := r.items[id]; ok {
		return "", false
	}
	e := &entry{id: id, prev: r.tail.prev, next: r.tail}
	r.tail.prev.next = e
	r.tail.prev = e
	r.items[id] = e

	if len(r.items) <= r.capacity {
		return "", false
	}
	oldest := r.head.next
	oldest.prev.next = oldest.next
	oldest.next.prev = oldest.prev
	delete(r.items, oldest.id)
	return oldest.id, true
}

func (r *retention) len() int {
	return len(r.items)
}
