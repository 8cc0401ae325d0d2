package lrulist

// Intrusive circular doubly linked lists with a sentinel head.
// head.next is the most recent entry, head.prev the oldest (the tail).
// All helpers are O(1) and require the lock of every list they touch.

func initHead(h *Node) {
	h.next = h
	h.prev = h
}

func listEmpty(h *Node) bool { return h.next == h }

// listAdd inserts n right after h (at the head).
func listAdd(n, h *Node) {
	next := h.next
	next.prev = n
	n.next = next
	n.prev = h
	h.next = n
}

// listDel unlinks n and leaves its links nil so that stale use is loud.
func listDel(n *Node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next, n.prev = nil, nil
}

// listMove moves n from whatever list it is on to the head of h.
func listMove(n, h *Node) {
	listDel(n)
	listAdd(n, h)
}

// listFirst returns the head entry or nil when the list is empty.
func listFirst(h *Node) *Node {
	if listEmpty(h) {
		return nil
	}
	return h.next
}

// listLen walks the list. Used for snapshots and tests only.
func listLen(h *Node) int {
	n := 0
	for p := h.next; p != h; p = p.next {
		n++
	}
	return n
}
