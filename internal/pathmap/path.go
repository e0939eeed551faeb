package pathmap

import "strings"

// Separator joins segments in the string form of a Path.
const Separator = "/"

// Path addresses a node in a Tree.
type Path []Segment

// P builds a Path of string segments.
func P(parts ...string) Path {
	p := make(Path, len(parts))
	for i, part := range parts {
		p[i] = Str(part)
	}
	return p
}

// ParsePath splits s on sep into string segments. Empty parts, such as
// those produced by a leading or doubled separator, are skipped.
func ParsePath(s, sep string) Path {
	if sep == "" {
		sep = Separator
	}
	var p Path
	for _, part := range strings.Split(s, sep) {
		if part == "" {
			continue
		}
		p = append(p, Str(part))
	}
	return p
}

// Join returns a new Path made of p followed by more. p is not modified.
func (p Path) Join(more ...Segment) Path {
	out := make(Path, 0, len(p)+len(more))
	out = append(out, p...)
	return append(out, more...)
}

// JoinStr is Join for string segments.
func (p Path) JoinStr(more ...string) Path {
	return p.Join(P(more...)...)
}

// HasPrefix reports whether prefix is a leading subsequence of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both paths have identical segments.
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

// Last returns the final segment, or the zero Segment for an empty path.
func (p Path) Last() Segment {
	if len(p) == 0 {
		return Segment{}
	}
	return p[len(p)-1]
}

// String joins the rendered segments with Separator.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, Separator)
}
