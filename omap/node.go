package omap

type node[K comparable] struct {
	Prev  *node[K]
	Next  *node[K]
	Value K
}

func newRootNode[K comparable]() *node[K] {
	root := &node[K]{}
	root.Prev = root
	root.Next = root
	return root
}

func newNode[K comparable](prev, next *node[K], key K) *node[K] {
	return &node[K]{Prev: prev, Next: next, Value: key}
}

// Add appends key at tail of the list
func (n *node[K]) Add(key K) *node[K] {
	last := n.Prev
	last.Next = newNode(last, n, key)
	n.Prev = last.Next
	return last.Next
}

// unlink removes node from the list
func (n *node[K]) unlink() {
	n.Prev.Next = n.Next
	n.Next.Prev = n.Prev
	n.Prev = nil
	n.Next = nil
}

// IterFunc iterates keys starting from head
func (n *node[K]) IterFunc() func() (K, bool) {
	curr := n.Next
	return func() (K, bool) {
		if curr != n {
			tmp := curr
			curr = curr.Next
			return tmp.Value, true
		}

		var zero K
		return zero, false
	}
}
