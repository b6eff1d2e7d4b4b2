package opsched

// handle indexes a node in an arena.
type handle int32

const nilHandle handle = -1

// node links one process into exactly one queue. owner is nil while the
// node is unlinked.
type node struct {
	proc  *Process
	next  handle
	owner *Queue
	used  bool
}

// arena holds the nodes of every queue of one schedule. Queues link nodes by
// handle, so moving a process between queues rewrites indices and never
// copies the process.
type arena struct {
	nodes []node
	free  []handle
	live  int
}

func newArena() *arena {
	return &arena{}
}

func (a *arena) alloc(p *Process) handle {
	var h handle
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.nodes = append(a.nodes, node{})
		h = handle(len(a.nodes) - 1)
	}
	a.nodes[h] = node{proc: p, next: nilHandle, used: true}
	a.live++
	return h
}

// release frees an unlinked node and returns its process.
func (a *arena) release(h handle) *Process {
	n := a.node(h)
	if n == nil || n.owner != nil {
		return nil
	}
	p := n.proc
	*n = node{next: nilHandle}
	a.free = append(a.free, h)
	a.live--
	return p
}

// node returns the in-use node for h, or nil.
func (a *arena) node(h handle) *node {
	if h < 0 || int(h) >= len(a.nodes) || !a.nodes[h].used {
		return nil
	}
	return &a.nodes[h]
}

func (a *arena) reset() {
	a.nodes = nil
	a.free = nil
	a.live = 0
}
