package filter

import (
	"sync"

	"github.com/rebeliceyang/lazyvar/internal/models"
)

// NodeID addresses a node inside an Arena
type NodeID int32

// NoNode is the root of an empty tree
const NoNode NodeID = -1

type node struct {
	leaf   *Leaf
	left   NodeID
	right  NodeID
	op     models.LogicalOperator
	leaves int
}

// Arena stores tree nodes. Nodes are never modified once added, so trees
// built in the same arena can share subtrees freely.
type Arena struct {
	mu    sync.RWMutex
	nodes []node
}

// NewArena creates an empty arena
func NewArena() *Arena {
	return &Arena{}
}

// Len returns the number of nodes allocated so far
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes)
}

func (a *Arena) add(n node) NodeID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = append(a.nodes, n)
	return NodeID(len(a.nodes) - 1)
}

func (a *Arena) get(id NodeID) node {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nodes[id]
}

func (a *Arena) leaf(l Leaf) NodeID {
	return a.add(node{leaf: &l, left: NoNode, right: NoNode, leaves: 1})
}

func (a *Arena) combine(left NodeID, op models.LogicalOperator, right NodeID) NodeID {
	return a.add(node{
		left:   left,
		right:  right,
		op:     op,
		leaves: a.get(left).leaves + a.get(right).leaves,
	})
}

// Tree is a binary AND/OR tree of leaves. It is a small value; copying it
// never copies nodes.
type Tree struct {
	arena *Arena
	root  NodeID
}

// LeafRef is a leaf together with its node id
type LeafRef struct {
	ID   NodeID
	Leaf Leaf
}

// Empty returns a tree without any criterion
func Empty(arena *Arena) Tree {
	return Tree{arena: arena, root: NoNode}
}

// NewTree returns a simple tree holding one leaf
func NewTree(arena *Arena, leaf Leaf) Tree {
	return Tree{arena: arena, root: arena.leaf(leaf)}
}

// Arena returns the arena the tree lives in
func (t Tree) Arena() *Arena {
	return t.arena
}

// Root returns the id of the root node, or NoNode
func (t Tree) Root() NodeID {
	return t.root
}

// IsEmpty reports whether the tree has no leaf
func (t Tree) IsEmpty() bool {
	return t.arena == nil || t.root == NoNode
}

// LeafCount returns the number of leaves
func (t Tree) LeafCount() int {
	if t.IsEmpty() {
		return 0
	}
	return t.arena.get(t.root).leaves
}

// IsSimple reports whether the tree holds exactly one leaf
func (t Tree) IsSimple() bool {
	return t.LeafCount() == 1
}

// LogicalOperator returns the operator at the root. It is only defined for
// compound trees; deeper levels may use other operators.
func (t Tree) LogicalOperator() (models.LogicalOperator, bool) {
	if t.IsEmpty() {
		return "", false
	}
	n := t.arena.get(t.root)
	if n.leaf != nil {
		return "", false
	}
	return n.op, true
}

// Leaf returns the leaf of a simple tree
func (t Tree) Leaf() (Leaf, bool) {
	if t.IsEmpty() {
		return Leaf{}, false
	}
	n := t.arena.get(t.root)
	if n.leaf == nil {
		return Leaf{}, false
	}
	return *n.leaf, true
}

// Left returns the left subtree of a compound tree
func (t Tree) Left() (Tree, bool) {
	return t.child(func(n node) NodeID { return n.left })
}

// Right returns the right subtree of a compound tree
func (t Tree) Right() (Tree, bool) {
	return t.child(func(n node) NodeID { return n.right })
}

func (t Tree) child(pick func(node) NodeID) (Tree, bool) {
	if t.IsEmpty() {
		return Tree{}, false
	}
	n := t.arena.get(t.root)
	if n.leaf != nil {
		return Tree{}, false
	}
	return Tree{arena: t.arena, root: pick(n)}, true
}

// AddLeaf returns a new tree whose root combines the receiver, on the left,
// with the new leaf on the right. The receiver is left untouched. Adding to
// an empty tree returns a simple tree.
func (t Tree) AddLeaf(leaf Leaf, op models.LogicalOperator) Tree {
	if t.IsEmpty() {
		return NewTree(t.arenaOrNew(), leaf)
	}
	right := t.arena.leaf(leaf)
	return Tree{arena: t.arena, root: t.arena.combine(t.root, op, right)}
}

// Combine returns {t op other}. Trees from another arena are copied in.
func (t Tree) Combine(other Tree, op models.LogicalOperator) Tree {
	if other.IsEmpty() {
		return t
	}
	arena := t.arenaOrNew()
	right := other.root
	if other.arena != arena {
		right = copyInto(arena, other.arena, other.root)
	}
	if t.IsEmpty() {
		return Tree{arena: arena, root: right}
	}
	return Tree{arena: arena, root: arena.combine(t.root, op, right)}
}

func (t Tree) arenaOrNew() *Arena {
	if t.arena == nil {
		return NewArena()
	}
	return t.arena
}

func copyInto(dst, src *Arena, id NodeID) NodeID {
	n := src.get(id)
	if n.leaf != nil {
		return dst.leaf(*n.leaf)
	}
	l := copyInto(dst, src, n.left)
	r := copyInto(dst, src, n.right)
	return dst.combine(l, n.op, r)
}

// Leaves returns every leaf from left to right
func (t Tree) Leaves() []LeafRef {
	var out []LeafRef
	t.walk(func(id NodeID, l Leaf) {
		out = append(out, LeafRef{ID: id, Leaf: l})
	})
	return out
}

func (t Tree) walk(fn func(NodeID, Leaf)) {
	if t.IsEmpty() {
		return
	}
	var visit func(NodeID)
	visit = func(id NodeID) {
		n := t.arena.get(id)
		if n.leaf != nil {
			fn(id, *n.leaf)
			return
		}
		visit(n.left)
		visit(n.right)
	}
	visit(t.root)
}

// References returns the distinct value lists used by the tree, in order of
// first use
func (t Tree) References() []models.ValueListReference {
	seen := make(map[models.ValueListReference]struct{})
	var refs []models.ValueListReference
	t.walk(func(_ NodeID, l Leaf) {
		for _, ref := range l.References() {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	})
	return refs
}

// CheckFieldCompatibility reports whether every leaf's fields exist in a
func (t Tree) CheckFieldCompatibility(a models.Analysis) bool {
	return len(t.IncompatibleLeaves(a)) == 0
}

// IncompatibleLeaves returns the leaves using a field missing from a
func (t Tree) IncompatibleLeaves(a models.Analysis) []LeafRef {
	var out []LeafRef
	t.walk(func(id NodeID, l Leaf) {
		if !l.CompatibleWith(a) {
			out = append(out, LeafRef{ID: id, Leaf: l})
		}
	})
	return out
}

// ChangeAnalysis adapts the tree to a. Leaves hold no per-analysis state, so
// the tree adapts exactly when it is compatible; on false the caller must
// prune or discard it.
func (t Tree) ChangeAnalysis(a models.Analysis) bool {
	return t.CheckFieldCompatibility(a)
}

// Remove returns a tree without the given leaf. The sibling of the removed
// leaf takes the place of their parent.
func (t Tree) Remove(id NodeID) Tree {
	return t.without(func(nid NodeID, _ Leaf) bool { return nid == id })
}

// Prune returns a tree without the leaves incompatible with a, along with
// the removed leaves
func (t Tree) Prune(a models.Analysis) (Tree, []Leaf) {
	var removed []Leaf
	pruned := t.without(func(_ NodeID, l Leaf) bool {
		if l.CompatibleWith(a) {
			return false
		}
		removed = append(removed, l)
		return true
	})
	return pruned, removed
}

func (t Tree) without(drop func(NodeID, Leaf) bool) Tree {
	if t.IsEmpty() {
		return t
	}
	var rebuild func(NodeID) NodeID
	rebuild = func(id NodeID) NodeID {
		n := t.arena.get(id)
		if n.leaf != nil {
			if drop(id, *n.leaf) {
				return NoNode
			}
			return id
		}
		l := rebuild(n.left)
		r := rebuild(n.right)
		switch {
		case l == n.left && r == n.right:
			return id
		case l == NoNode:
			return r
		case r == NoNode:
			return l
		default:
			return t.arena.combine(l, n.op, r)
		}
	}
	return Tree{arena: t.arena, root: rebuild(t.root)}
}

// Equal compares two trees structurally
func (t Tree) Equal(other Tree) bool {
	if t.IsEmpty() || other.IsEmpty() {
		return t.IsEmpty() && other.IsEmpty()
	}
	var eq func(a NodeID, b NodeID) bool
	eq = func(a, b NodeID) bool {
		if t.arena == other.arena && a == b {
			return true
		}
		na, nb := t.arena.get(a), other.arena.get(b)
		if (na.leaf == nil) != (nb.leaf == nil) {
			return false
		}
		if na.leaf != nil {
			return na.leaf.equal(*nb.leaf)
		}
		return na.op == nb.op && eq(na.left, nb.left) && eq(na.right, nb.right)
	}
	return eq(t.root, other.root)
}

// String renders the tree with every combination parenthesised, for
// example ((a = (x) AND b > (5)) OR c ~ (y))
func (t Tree) String() string {
	if t.IsEmpty() {
		return ""
	}
	var render func(NodeID) string
	render = func(id NodeID) string {
		n := t.arena.get(id)
		if n.leaf != nil {
			return n.leaf.String()
		}
		return "(" + render(n.left) + " " + string(n.op) + " " + render(n.right) + ")"
	}
	return render(t.root)
}
