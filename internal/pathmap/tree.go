package pathmap

import (
	"regexp"
	"slices"
	"strings"
	"sync"
)

// Kind tells what a successful Get found at a path.
type Kind int

const (
	// KindValue means the node holds a value.
	KindValue Kind = iota + 1
	// KindDirectory means the node has no value, only children.
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Resource is a value together with the full path it is stored at.
type Resource struct {
	Path  Path
	Value any
}

// Directory is a snapshot of a node that holds no value.
type Directory struct {
	// Children lists the immediate child segments in insertion order.
	Children []Segment
	// Resources lists every value stored below the node, with full paths.
	Resources []Resource
}

// Lookup is the result of Tree.Get.
type Lookup struct {
	Kind      Kind
	Value     any       // set when Kind == KindValue
	Directory Directory // set when Kind == KindDirectory
}

// Query filters traversals. The zero Query matches every stored value.
type Query struct {
	// Prefix restricts the traversal to the subtree at this path.
	Prefix Path
	// Suffix, when non-empty, must end the "/"-joined form of the path.
	Suffix string
	// Matches, when set, must match the whole "/"-joined form of the path.
	Matches *regexp.Regexp
}

type node struct {
	value    any
	hasValue bool
	children map[Segment]*node
	order    []Segment
}

func newNode() *node {
	return &node{children: make(map[Segment]*node)}
}

func (n *node) empty() bool {
	return !n.hasValue && len(n.children) == 0
}

func (n *node) child(seg Segment, create bool) *node {
	if c, ok := n.children[seg]; ok {
		return c
	}
	if !create {
		return nil
	}
	c := newNode()
	n.children[seg] = c
	n.order = append(n.order, seg)
	return c
}

func (n *node) removeChild(seg Segment) {
	delete(n.children, seg)
	if i := slices.Index(n.order, seg); i >= 0 {
		n.order = slices.Delete(n.order, i, i+1)
	}
}

// Tree is a hierarchical key/value store. The zero value is not usable;
// create trees with New. A Tree is safe for concurrent use.
type Tree struct {
	mu   sync.RWMutex
	root *node
	size int
}

// New creates an empty Tree.
func New() *Tree {
	return &Tree{root: newNode()}
}

// Put stores value at path, creating intermediate nodes. Any value held by
// a node that path passes through is dropped. An existing value at path is
// overwritten.
func (t *Tree) Put(path Path, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	for _, seg := range path {
		if cur.hasValue {
			cur.value, cur.hasValue = nil, false
			t.size--
		}
		cur = cur.child(seg, true)
	}
	if !cur.hasValue {
		t.size++
	}
	cur.value, cur.hasValue = value, true
}

// Get returns what is stored at path. The boolean is false when any segment
// of path is absent.
func (t *Tree) Get(path Path) (Lookup, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.find(path)
	if n == nil {
		return Lookup{}, false
	}
	if n.hasValue {
		return Lookup{Kind: KindValue, Value: n.value}, true
	}

	dir := Directory{Children: slices.Clone(n.order)}
	walk(n, slices.Clone(path), func(p Path, v any) {
		dir.Resources = append(dir.Resources, Resource{Path: p, Value: v})
	})
	return Lookup{Kind: KindDirectory, Directory: dir}, true
}

// Value returns the value at path and whether one is stored there.
// Directories report false.
func (t *Tree) Value(path Path) (any, bool) {
	l, ok := t.Get(path)
	if !ok || l.Kind != KindValue {
		return nil, false
	}
	return l.Value, true
}

// Has reports whether path resolves to any node.
func (t *Tree) Has(path Path) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.find(path) != nil
}

// Len returns the number of stored values.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Paths returns every path holding a value that satisfies q, in insertion
// order. An unresolvable prefix yields an empty result.
func (t *Tree) Paths(q Query) []Path {
	resources := t.Resources(q)
	paths := make([]Path, len(resources))
	for i, r := range resources {
		paths[i] = r.Path
	}
	return paths
}

// Resources is Paths returning the stored values alongside their paths.
func (t *Tree) Resources(q Query) []Resource {
	t.mu.RLock()
	defer t.mu.RUnlock()

	start := t.find(q.Prefix)
	if start == nil {
		return nil
	}

	match := newMatcher(q)
	var out []Resource
	walk(start, slices.Clone(q.Prefix), func(p Path, v any) {
		if match(p) {
			out = append(out, Resource{Path: p, Value: v})
		}
	})
	return out
}

// Delete removes the value at path, keeping any children, and prunes
// ancestors left empty. Returns false when no value was stored at path.
func (t *Tree) Delete(path Path) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	trail := t.trail(path)
	if trail == nil {
		return false
	}
	n := trail[len(trail)-1]
	if !n.hasValue {
		return false
	}
	n.value, n.hasValue = nil, false
	t.size--
	t.prune(path, trail)
	return true
}

// DeleteKey removes the whole subtree at path and prunes ancestors left
// empty. An empty path clears the tree. Returns false when path is absent.
func (t *Tree) DeleteKey(path Path) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(path) == 0 {
		t.root = newNode()
		t.size = 0
		return true
	}

	trail := t.trail(path)
	if trail == nil {
		return false
	}
	removed := 0
	walk(trail[len(trail)-1], nil, func(Path, any) { removed++ })
	t.size -= removed

	parent := trail[len(trail)-2]
	parent.removeChild(path.Last())
	t.prune(path[:len(path)-1], trail[:len(trail)-1])
	return true
}

// find returns the node at path, or nil. Callers hold the lock.
func (t *Tree) find(path Path) *node {
	cur := t.root
	for _, seg := range path {
		cur = cur.child(seg, false)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// trail returns the nodes from the root to path inclusive, or nil.
func (t *Tree) trail(path Path) []*node {
	nodes := make([]*node, 0, len(path)+1)
	cur := t.root
	nodes = append(nodes, cur)
	for _, seg := range path {
		cur = cur.child(seg, false)
		if cur == nil {
			return nil
		}
		nodes = append(nodes, cur)
	}
	return nodes
}

// prune walks trail from its end, detaching empty nodes from their parent.
// trail[i+1] is the child of trail[i] under path[i]. The root is never
// detached.
func (t *Tree) prune(path Path, trail []*node) {
	for i := len(trail) - 1; i > 0; i-- {
		if !trail[i].empty() {
			return
		}
		trail[i-1].removeChild(path[i-1])
	}
}

// walk visits every value below n depth-first, a node's own value before
// its children, children in insertion order.
func walk(n *node, path Path, visit func(Path, any)) {
	if n.hasValue {
		visit(slices.Clone(path), n.value)
	}
	for _, seg := range n.order {
		walk(n.children[seg], append(path, seg), visit)
	}
}

func newMatcher(q Query) func(Path) bool {
	var full *regexp.Regexp
	if q.Matches != nil {
		full = regexp.MustCompile(`^(?:` + q.Matches.String() + `)$`)
	}
	return func(p Path) bool {
		if q.Suffix == "" && full == nil {
			return true
		}
		s := p.String()
		if q.Suffix != "" && !strings.HasSuffix(s, q.Suffix) {
			return false
		}
		return full == nil || full.MatchString(s)
	}
}
