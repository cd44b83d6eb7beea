package repository

import "math/rand/v2"

// board is a treap of the teams of one event.
//
// Ordering: score DESC, then team id ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the standings
// from best to worst.
type board struct {
	root   *node
	scores map[int64]int64
}

type node struct {
	id    int64
	score int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func newBoard() *board {
	return &board{scores: make(map[int64]int64)}
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) should appear before (bScore, bID).
func less(aScore, aID, bScore, bID int64) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id, score int64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id, score int64) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		// Merge children by rotating highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	} else if less(score, id, n.score, n.id) {
		n.left = deleteNode(n.left, id, score)
	} else {
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// add places a team on the board with the given score.
func (b *board) add(id, score int64) {
	if _, ok := b.scores[id]; ok {
		return
	}
	b.scores[id] = score
	b.root = insert(b.root, id, score, rand.Uint64())
}

// increment adds delta points and reorders the team.
func (b *board) increment(id, delta int64) {
	old, ok := b.scores[id]
	if !ok {
		return
	}
	b.root = deleteNode(b.root, id, old)
	b.scores[id] = old + delta
	b.root = insert(b.root, id, old+delta, rand.Uint64())
}

func (b *board) len() int {
	return nsize(b.root)
}

// ordered appends team ids in rank order.
func (b *board) ordered() []int64 {
	out := make([]int64, 0, b.len())
	collect(b.root, &out)
	return out
}

func collect(n *node, out *[]int64) {
	if n == nil {
		return
	}
	collect(n.left, out)
	*out = append(*out, n.id)
	collect(n.right, out)
}
