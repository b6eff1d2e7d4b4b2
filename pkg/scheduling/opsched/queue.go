package opsched

import (
	"fmt"

	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
)

// Queue is a singly linked FIFO of processes stored in its schedule's arena.
// The length is cached and never recomputed by traversal.
type Queue struct {
	name   string
	arena  *arena
	head   handle
	tail   handle
	length int
}

func newQueue(name string, a *arena) *Queue {
	return &Queue{
		name:  name,
		arena: a,
		head:  nilHandle,
		tail:  nilHandle,
	}
}

// Name returns the queue role: "high", "low" or "defunct".
func (q *Queue) Name() string { return q.name }

// Len returns the number of linked processes.
func (q *Queue) Len() int { return q.length }

// Each calls fn for every process from head to tail until fn returns false.
func (q *Queue) Each(fn func(p *Process) bool) {
	for h := q.head; h != nilHandle; {
		n := q.arena.node(h)
		if !fn(n.proc) {
			return
		}
		h = n.next
	}
}

// PIDs returns the identities in queue order.
func (q *Queue) PIDs() []PID {
	pids := make([]PID, 0, q.length)
	q.Each(func(p *Process) bool {
		pids = append(pids, p.pid)
		return true
	})
	return pids
}

// Validate walks the chain and checks the cached length, the tail and node
// ownership.
func (q *Queue) Validate() error {
	count := 0
	last := nilHandle
	for h := q.head; h != nilHandle; {
		n := q.arena.node(h)
		if n == nil {
			return fmt.Errorf("queue %s: dangling handle %d at position %d", q.name, h, count)
		}
		if n.owner != q {
			return fmt.Errorf("queue %s: handle %d owned by another queue", q.name, h)
		}
		count++
		if count > q.length {
			return fmt.Errorf("queue %s: chain longer than cached length %d", q.name, q.length)
		}
		last = h
		h = n.next
	}
	if count != q.length {
		return fmt.Errorf("queue %s: cached length %d, linked %d", q.name, q.length, count)
	}
	if last != q.tail {
		return fmt.Errorf("queue %s: tail %d, last linked %d", q.name, q.tail, last)
	}
	return nil
}

// append links h at the tail.
func (q *Queue) append(h handle) error {
	n := q.arena.node(h)
	if n == nil {
		return oserrors.ErrInvalidArgument
	}
	if n.owner != nil {
		return fmt.Errorf("%w: handle already linked in queue %s", oserrors.ErrInvalidArgument, n.owner.name)
	}

	n.owner = q
	n.next = nilHandle
	if q.tail == nilHandle {
		q.head = h
	} else {
		q.arena.node(q.tail).next = h
	}
	q.tail = h
	q.length++
	return nil
}

// unlink removes h, whose predecessor is prev (nilHandle when h is the head).
func (q *Queue) unlink(prev, h handle) {
	n := q.arena.node(h)
	if prev == nilHandle {
		q.head = n.next
	} else {
		q.arena.node(prev).next = n.next
	}
	if q.tail == h {
		q.tail = prev
	}
	n.next = nilHandle
	n.owner = nil
	q.length--
}

func (q *Queue) popFront() (handle, bool) {
	if q.head == nilHandle {
		return nilHandle, false
	}
	h := q.head
	q.unlink(nilHandle, h)
	return h, true
}

// removeFirst unlinks the first process, head to tail, for which match
// returns true.
func (q *Queue) removeFirst(match func(*Process) bool) (handle, bool) {
	prev := nilHandle
	for h := q.head; h != nilHandle; {
		n := q.arena.node(h)
		if match(n.proc) {
			q.unlink(prev, h)
			return h, true
		}
		prev = h
		h = n.next
	}
	return nilHandle, false
}

// removeByIdentity unlinks the process with the given identity. The queue is
// unchanged when no process matches.
func (q *Queue) removeByIdentity(pid PID) (handle, error) {
	h, ok := q.removeFirst(func(p *Process) bool { return p.pid == pid })
	if !ok {
		return nilHandle, oserrors.ErrNotFound
	}
	return h, nil
}

// moveMatching transfers every process for which match returns true to the
// tail of dst, in head to tail order, and returns the moved processes.
func (q *Queue) moveMatching(dst *Queue, match func(*Process) bool) []*Process {
	var moved []*Process
	prev := nilHandle
	for h := q.head; h != nilHandle; {
		n := q.arena.node(h)
		next := n.next
		if match(n.proc) {
			q.unlink(prev, h)
			// unlink cleared the owner, so append cannot fail
			_ = dst.append(h)
			moved = append(moved, n.proc)
		} else {
			prev = h
		}
		h = next
	}
	return moved
}

// drain unlinks and releases every node, head to tail.
func (q *Queue) drain() {
	for {
		h, ok := q.popFront()
		if !ok {
			return
		}
		q.arena.release(h)
	}
}
