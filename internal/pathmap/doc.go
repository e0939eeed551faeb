// Package pathmap implements a tree-shaped key/value store addressed by
// sequences of path segments.
//
// Every node of the tree may hold a value, children, or both. Writes create
// intermediate nodes on demand; deletes prune ancestors that are left with
// neither a value nor children. Traversal queries return every path that
// holds a value below a prefix, filtered by a string suffix and an anchored
// regular expression applied to the "/"-joined form of the path.
//
// # Lookups on directories
//
// Get distinguishes between a node holding a value (KindValue) and a node
// that only has children (KindDirectory). A directory lookup is still a
// successful lookup: callers that only expect values must check Kind.
//
// Writing below a node that holds a value turns that node into a pure
// directory and drops its value:
//
//	t.Put(pathmap.P("a"), 1)
//	t.Put(pathmap.P("a", "b"), 2)
//	l, _ := t.Get(pathmap.P("a")) // l.Kind == KindDirectory
//
// Writing a value onto an existing directory keeps its children, and Get on
// such a mixed node returns the value.
package pathmap
