package pathmap

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"strings"
)

type segmentKind uint8

const (
	kindString segmentKind = iota
	kindType
)

// typeTagLen is the number of hex characters of the type hash kept in a tag.
const typeTagLen = 16

// Segment is one element of a Path: either a plain string or a tag derived
// from a Go type. Segments are comparable and usable as map keys.
type Segment struct {
	kind  segmentKind
	value string // string segment text, or the hex tag for type segments
	name  string // qualified type name for type segments
}

// Str returns a string segment.
func Str(s string) Segment {
	return Segment{kind: kindString, value: s}
}

// TypeTag returns a segment identifying t. The tag is derived from the
// type's package path and name, so it is stable across processes, and two
// distinct named types never share a tag in practice.
func TypeTag(t reflect.Type) Segment {
	name := qualifiedTypeName(t)
	sum := sha256.Sum256([]byte(name))
	return Segment{
		kind:  kindType,
		value: hex.EncodeToString(sum[:])[:typeTagLen],
		name:  name,
	}
}

// TypeOf returns the type segment for T.
func TypeOf[T any]() Segment {
	return TypeTag(reflect.TypeOf((*T)(nil)).Elem())
}

func qualifiedTypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	// Unnamed or predeclared types: the type literal is already unique.
	return t.String()
}

// IsType reports whether the segment was built from a Go type.
func (s Segment) IsType() bool {
	return s.kind == kindType
}

// String renders the segment for "/"-joined path strings. Type segments
// render as "type(<pkg>.<Name>#<tag>)".
func (s Segment) String() string {
	if s.kind == kindType {
		var b strings.Builder
		b.WriteString("type(")
		b.WriteString(s.name)
		b.WriteByte('#')
		b.WriteString(s.value)
		b.WriteByte(')')
		return b.String()
	}
	return s.value
}
